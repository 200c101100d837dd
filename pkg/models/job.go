package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobKindDiagnostic = "diagnostic"
	JobKindCrop       = "crop"
	JobKindFertilizer = "fertilizer"
)

// Job tracks one async inference request. The API returns a job id on creation;
// the client polls until status is completed or failed. Input is immutable after
// creation; Result is null until a terminal state and written once per run.
type Job struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	UserID    uuid.UUID       `db:"user_id"    json:"user_id"`
	Kind      string          `db:"kind"       json:"kind"`
	Status    string          `db:"status"     json:"status"`
	Input     json.RawMessage `db:"input"      json:"input"`
	Result    json.RawMessage `db:"result"     json:"result,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// DiagnosticInput is the payload for an image diagnostic job. ImagePath points
// at the uploaded file on local storage.
type DiagnosticInput struct {
	ImagePath string `json:"image_path"`
	PlantType string `json:"plant_type,omitempty"`
}

// CropInput holds the soil and climate readings for a crop recommendation.
type CropInput struct {
	Nitrogen    float64 `json:"nitrogen"`
	Phosphorus  float64 `json:"phosphorus"`
	Potassium   float64 `json:"potassium"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`
}

// FertilizerInput holds the readings plus the two categorical fields for a
// fertilizer recommendation. Soil and crop names are matched case-insensitively.
type FertilizerInput struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Moisture    float64 `json:"moisture"`
	Nitrogen    float64 `json:"nitrogen"`
	Phosphorus  float64 `json:"phosphorus"`
	Potassium   float64 `json:"potassium"`
	SoilType    string  `json:"soil_type"`
	Crop        string  `json:"crop"`
}

// DiagnosticResult is the persisted output of a completed diagnostic job.
type DiagnosticResult struct {
	DiseaseDetected bool    `json:"disease_detected"`
	DiseaseName     string  `json:"disease_name"`
	Confidence      float64 `json:"confidence"`
	Explanation     string  `json:"explanation"`
}

// RecommendationResult is the persisted output of a completed crop or
// fertilizer job.
type RecommendationResult struct {
	PredictedLabel int     `json:"predicted_label"`
	PredictedName  string  `json:"predicted_name"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation"`
}

// ErrorResult is written in place of a kind-specific result when a job fails.
type ErrorResult struct {
	Error string `json:"error"`
}
