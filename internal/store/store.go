package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rumenyi/agroassist/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	// ErrConflict means a status-guarded job transition found the row in a
	// different state, e.g. claiming a job another worker already claimed or
	// re-running a job that is still processing.
	ErrConflict = errors.New("job status conflict")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)

	// ClaimJob atomically moves a pending job to processing and returns it.
	// Returns ErrConflict when the job is not pending (already claimed or
	// terminal), ErrNotFound when it does not exist.
	ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// CompleteJob writes the final result and moves processing -> completed.
	CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	// FailJob writes an error result and moves processing -> failed.
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error
	// ResetJob moves a terminal job back to pending and clears its result,
	// scoped to the owning user. Returns ErrConflict when the job is pending
	// or processing.
	ResetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	// ReclaimStaleJobs resets processing jobs whose lease expired (updated_at
	// before cutoff) back to pending and returns their ids for re-enqueue.
	ReclaimStaleJobs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	// ListPendingJobs returns ids of all pending jobs, oldest first. Used at
	// startup to re-enqueue work that survived a restart.
	ListPendingJobs(ctx context.Context) ([]uuid.UUID, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	// ListRecentMessages returns up to limit most recent messages in
	// chronological order.
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

// JobFilter scopes and paginates job listings.
type JobFilter struct {
	UserID uuid.UUID
	Kind   string
	Status string
	Page   int
	Limit  int
}
