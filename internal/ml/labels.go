// Package ml holds the inference-side building blocks: label tables, the
// feature encoder, and the model handles the pipeline predicts with.
package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UnknownLabel is returned for any index absent from a label table.
const UnknownLabel = "Inconnu"

// Disease class indices emitted by the leaf classifier.
const (
	DiseaseEarlyBlight = 0
	DiseaseLateBlight  = 1
	DiseaseHealthy     = 2
)

// HealthyLabel is the canonical label for a plant with no detected disease.
const HealthyLabel = "Healthy"

// LabelTable maps model class indices to display names. Immutable after load;
// safe for concurrent use.
type LabelTable struct {
	names map[int]string
}

// NewLabelTable builds a table from an index→name map.
func NewLabelTable(names map[int]string) *LabelTable {
	copied := make(map[int]string, len(names))
	for k, v := range names {
		copied[k] = v
	}
	return &LabelTable{names: copied}
}

// LoadLabelTable reads a JSON table of string-keyed indices, e.g.
// {"0": "maize", "1": "rice"}.
func LoadLabelTable(path string) (*LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label table %s: %w", path, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse label table %s: %w", path, err)
	}
	names := make(map[int]string, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("label table %s: non-integer key %q", path, k)
		}
		names[idx] = v
	}
	return &LabelTable{names: names}, nil
}

// Resolve returns the display name for a class index, or UnknownLabel for any
// index outside the table. Never fails.
func (t *LabelTable) Resolve(idx int) string {
	if name, ok := t.names[idx]; ok {
		return name
	}
	return UnknownLabel
}

// NameIndex derives the reverse lookup (lowercased name → index) used to encode
// categorical features.
func (t *LabelTable) NameIndex() *NameIndex {
	index := make(map[string]int, len(t.names))
	for idx, name := range t.names {
		index[strings.ToLower(name)] = idx
	}
	return &NameIndex{index: index}
}

// DiseaseLabels returns the fixed table for the leaf disease classifier.
func DiseaseLabels() *LabelTable {
	return NewLabelTable(map[int]string{
		DiseaseEarlyBlight: "Early Blight",
		DiseaseLateBlight:  "Late Blight",
		DiseaseHealthy:     HealthyLabel,
	})
}

// NameIndex maps categorical names to the integer index the trained model was
// fed. Lookups are case-insensitive; unrecognized names fall back to index 0 so
// a misspelled soil or crop name degrades precision instead of failing the job.
type NameIndex struct {
	index map[string]int
}

// NewNameIndex builds an index from a name→index map. Keys are lowercased.
func NewNameIndex(index map[string]int) *NameIndex {
	copied := make(map[string]int, len(index))
	for k, v := range index {
		copied[strings.ToLower(k)] = v
	}
	return &NameIndex{index: copied}
}

// LoadNameIndex reads a JSON name→index table, e.g. {"sandy": 0, "loamy": 1}.
func LoadNameIndex(path string) (*NameIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read name index %s: %w", path, err)
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse name index %s: %w", path, err)
	}
	return NewNameIndex(raw), nil
}

// Index returns the model index for a name, or 0 when the name is unknown.
func (n *NameIndex) Index(name string) int {
	if idx, ok := n.index[strings.ToLower(name)]; ok {
		return idx
	}
	return 0
}
