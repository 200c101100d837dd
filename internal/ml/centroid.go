package ml

import (
	"encoding/json"
	"fmt"
)

// CentroidModel classifies by nearest centroid: the class whose exported
// centroid is closest (squared Euclidean distance) to the feature vector wins.
// It emits the class index directly, with no distribution.
type CentroidModel struct {
	centroids [][]float64
}

func loadCentroidModel(data []byte) (*CentroidModel, error) {
	var raw struct {
		Centroids [][]float64 `json:"centroids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse centroid model: %w", err)
	}
	if len(raw.Centroids) == 0 {
		return nil, fmt.Errorf("centroid model has no centroids")
	}
	dim := len(raw.Centroids[0])
	for i, c := range raw.Centroids {
		if len(c) != dim {
			return nil, fmt.Errorf("centroid %d has dimension %d, expected %d", i, len(c), dim)
		}
	}
	return &CentroidModel{centroids: raw.Centroids}, nil
}

func (m *CentroidModel) Name() string { return "centroid" }

func (m *CentroidModel) Run(features []float64) (Output, error) {
	if len(features) != len(m.centroids[0]) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.centroids[0]), len(features))
	}
	best := 0
	bestDist := squaredDistance(features, m.centroids[0])
	for i := 1; i < len(m.centroids); i++ {
		if d := squaredDistance(features, m.centroids[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return DirectLabel(best), nil
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
