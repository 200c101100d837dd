package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

// DenseModel is a feed-forward network loaded from exported weights. The final
// layer is expected to produce class scores; with a softmax activation the
// output is a probability distribution over classes.
type DenseModel struct {
	layers []denseLayer
}

type denseLayer struct {
	// Weights[neuron][input] = weight
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

func loadDenseModel(data []byte) (*DenseModel, error) {
	var raw struct {
		Layers []denseLayer `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dense model: %w", err)
	}
	if len(raw.Layers) == 0 {
		return nil, fmt.Errorf("dense model has no layers")
	}
	for i, layer := range raw.Layers {
		if len(layer.Weights) == 0 || len(layer.Weights) != len(layer.Biases) {
			return nil, fmt.Errorf("dense model layer %d: weights/biases shape mismatch", i)
		}
	}
	return &DenseModel{layers: raw.Layers}, nil
}

func (m *DenseModel) Name() string { return "dense" }

// Run performs the forward pass and returns the final activations as a
// Distribution.
func (m *DenseModel) Run(features []float64) (Output, error) {
	current := features
	for i, layer := range m.layers {
		next := make([]float64, len(layer.Weights))
		for j, weights := range layer.Weights {
			if len(weights) != len(current) {
				return nil, fmt.Errorf("layer %d neuron %d expects %d inputs, got %d",
					i, j, len(weights), len(current))
			}
			sum := layer.Biases[j]
			for k, w := range weights {
				sum += w * current[k]
			}
			next[j] = sum
		}
		applyActivation(layer.Activation, next)
		current = next
	}
	return Distribution(current), nil
}

func applyActivation(name string, values []float64) {
	switch name {
	case "relu":
		for i, v := range values {
			if v < 0 {
				values[i] = 0
			}
		}
	case "sigmoid":
		for i, v := range values {
			values[i] = 1 / (1 + math.Exp(-v))
		}
	case "softmax":
		// Shift by the max for numerical stability.
		max := values[0]
		for _, v := range values {
			if v > max {
				max = v
			}
		}
		var sum float64
		for i, v := range values {
			values[i] = math.Exp(v - max)
			sum += values[i]
		}
		for i := range values {
			values[i] /= sum
		}
	}
}
