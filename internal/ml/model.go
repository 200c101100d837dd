package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrModelUnavailable means the model artifact failed to load at startup.
// Jobs that need the model fail fast with this error instead of crashing the
// process or attempting any external call.
var ErrModelUnavailable = errors.New("model unavailable")

// Output is the raw prediction a model emits. The shape branch (probability
// distribution vs direct class index) is decided once here, at the adapter
// boundary, not at call sites.
type Output interface {
	isOutput()
}

// Distribution is a rank-2 style output: one probability per class.
type Distribution []float64

func (Distribution) isOutput() {}

// DirectLabel is a rank-1 style output: the class index itself, with no
// distribution available.
type DirectLabel int

func (DirectLabel) isOutput() {}

// Model runs inference on an encoded feature vector. Implementations must be
// safe for concurrent use after load.
type Model interface {
	Name() string
	Run(features []float64) (Output, error)
}

// Decide collapses a raw output into (label index, confidence). A direct label
// carries confidence 1.0 since no distribution exists.
func Decide(out Output) (int, float64, error) {
	switch o := out.(type) {
	case Distribution:
		if len(o) == 0 {
			return 0, 0, fmt.Errorf("empty distribution")
		}
		best := 0
		for i, p := range o {
			if p > o[best] {
				best = i
			}
		}
		return best, o[best], nil
	case DirectLabel:
		return int(o), 1.0, nil
	default:
		return 0, 0, fmt.Errorf("unknown output type %T", out)
	}
}

// Handle is the process-wide, read-only handle for one model kind. A failed
// load is recorded rather than fatal: Predict then returns ErrModelUnavailable
// for every job of that kind until redeployment with a working artifact.
type Handle struct {
	kind    string
	model   Model
	loadErr error
}

// NewHandle loads the artifact at path. The returned handle is always usable;
// check Available or let Predict report the load failure.
func NewHandle(kind, path string) *Handle {
	model, err := LoadModel(path)
	return &Handle{kind: kind, model: model, loadErr: err}
}

// NewHandleFromModel wraps an already-constructed model. Used by tests.
func NewHandleFromModel(kind string, model Model) *Handle {
	return &Handle{kind: kind, model: model}
}

// NewUnavailableHandle returns a handle whose Predict always fails with
// ErrModelUnavailable.
func NewUnavailableHandle(kind string, err error) *Handle {
	return &Handle{kind: kind, loadErr: err}
}

func (h *Handle) Kind() string { return h.kind }

func (h *Handle) Available() bool { return h.loadErr == nil }

// LoadError returns the startup load failure, if any.
func (h *Handle) LoadError() error { return h.loadErr }

// Predict runs the model and collapses its output to (label index, confidence).
func (h *Handle) Predict(features []float64) (int, float64, error) {
	if h.loadErr != nil {
		return 0, 0, fmt.Errorf("%w: %s model: %v", ErrModelUnavailable, h.kind, h.loadErr)
	}
	out, err := h.model.Run(features)
	if err != nil {
		return 0, 0, fmt.Errorf("%s model: %w", h.kind, err)
	}
	return Decide(out)
}

// LoadModel reads a JSON model artifact and constructs the matching
// implementation based on its "type" field.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w", path, err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}

	switch probe.Type {
	case "dense":
		return loadDenseModel(data)
	case "centroid":
		return loadCentroidModel(data)
	default:
		return nil, fmt.Errorf("model artifact %s: unknown type %q", path, probe.Type)
	}
}
