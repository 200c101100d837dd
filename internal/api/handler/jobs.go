package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/rumenyi/agroassist/internal/api/middleware"
	"github.com/rumenyi/agroassist/internal/api/response"
	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/models"
)

// maxImageUploadBytes bounds diagnostic image uploads.
const maxImageUploadBytes = 10 << 20

// JobService is the pipeline surface the job handlers depend on.
type JobService interface {
	Trigger(ctx context.Context, userID uuid.UUID, kind string, input any) (*models.Job, error)
	ReRun(ctx context.Context, jobID uuid.UUID, userID uuid.UUID) (*models.Job, error)
}

// JobReader reads jobs for polling and listing.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// Jobs serves the per-kind job endpoints: create, poll, list, re-run.
type Jobs struct {
	pipeline   JobService
	reader     JobReader
	uploadsDir string
}

// NewJobs creates the job handlers. uploadsDir must exist and be writable.
func NewJobs(pipeline JobService, reader JobReader, uploadsDir string) *Jobs {
	return &Jobs{pipeline: pipeline, reader: reader, uploadsDir: uploadsDir}
}

// CreateDiagnostic handles POST /api/v1/diagnostics. Expects a multipart form
// with an "image" file and optional "plant_type" field. The image is stored
// locally; the pipeline reads it back when the job runs.
func (h *Jobs) CreateDiagnostic(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadBytes)
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Expected a multipart form with an image file", nil)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image file is required", nil)
		return
	}
	defer file.Close()

	imagePath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to store uploaded image", nil)
		return
	}

	input := models.DiagnosticInput{
		ImagePath: imagePath,
		PlantType: r.FormValue("plant_type"),
	}

	job, err := h.pipeline.Trigger(r.Context(), userID, models.JobKindDiagnostic, input)
	if err != nil {
		os.Remove(imagePath)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create diagnostic job", nil)
		return
	}

	response.Accepted(w, job)
}

// CreateCrop handles POST /api/v1/crops.
func (h *Jobs) CreateCrop(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	var input models.CropInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}

	job, err := h.pipeline.Trigger(r.Context(), userID, models.JobKindCrop, input)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create crop job", nil)
		return
	}

	response.Accepted(w, job)
}

// CreateFertilizer handles POST /api/v1/fertilizers.
func (h *Jobs) CreateFertilizer(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	var input models.FertilizerInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if input.SoilType == "" || input.Crop == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"soil_type and crop are required", nil)
		return
	}

	job, err := h.pipeline.Trigger(r.Context(), userID, models.JobKindFertilizer, input)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create fertilizer job", nil)
		return
	}

	response.Accepted(w, job)
}

// Get returns the poll handler for GET /api/v1/{kind plural}/{jobID}. A job of
// a different kind is reported as not found so ids don't leak across endpoints.
func (h *Jobs) Get(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := h.reader.GetJob(r.Context(), jobID, userID)
		if err != nil || job.Kind != kind {
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to load job", nil)
				return
			}
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		response.JSON(w, job)
	}
}

// List returns the listing handler for GET /api/v1/{kind plural}.
func (h *Jobs) List(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page <= 0 {
			page = 1
		}
		if limit <= 0 {
			limit = 20
		}

		jobs, total, err := h.reader.ListJobs(r.Context(), store.JobFilter{
			UserID: userID,
			Kind:   kind,
			Status: r.URL.Query().Get("status"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// ReRun returns the handler for POST /api/v1/{kind plural}/{jobID}/rerun.
// Re-running a job that is still pending or processing is a conflict.
func (h *Jobs) ReRun(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		if job, err := h.reader.GetJob(r.Context(), jobID, userID); err != nil || job.Kind != kind {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		job, err := h.pipeline.ReRun(r.Context(), jobID, userID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			case errors.Is(err, store.ErrConflict):
				response.Error(w, http.StatusConflict, "JOB_ACTIVE",
					"Job is already pending or processing", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to re-run job", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}

// saveUpload writes the uploaded image under the uploads directory with a
// fresh name, keeping only the original extension.
func (h *Jobs) saveUpload(file io.Reader, original string) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 10 {
		ext = ""
	}
	path := filepath.Join(h.uploadsDir, fmt.Sprintf("%s%s", uuid.NewString(), ext))

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return path, nil
}
