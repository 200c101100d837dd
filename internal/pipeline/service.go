// Package pipeline owns the job lifecycle: it claims pending jobs, runs
// encode → predict → resolve → explain, and persists exactly one terminal
// status per run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rumenyi/agroassist/internal/cache"
	"github.com/rumenyi/agroassist/internal/gemini"
	"github.com/rumenyi/agroassist/internal/ml"
	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/models"
	"github.com/rumenyi/agroassist/pkg/prompt"
)

const statusTTL = 30 * time.Minute

// Models groups the three read-only model handles.
type Models struct {
	Disease    *ml.Handle
	Crop       *ml.Handle
	Fertilizer *ml.Handle
}

// Tables groups the immutable label and categorical tables.
type Tables struct {
	Disease    *ml.LabelTable
	Crop       *ml.LabelTable
	Fertilizer *ml.LabelTable
	Soils      *ml.NameIndex
}

// Options tunes the workers and the explanation call.
type Options struct {
	Workers        int
	QueueSize      int
	JobLease       time.Duration
	ExplainTimeout time.Duration
	RetryBackoff   time.Duration
}

// Service orchestrates job execution. One Service runs per process; jobs
// across different ids execute in parallel on its workers, steps within one
// job are strictly sequential.
type Service struct {
	store   store.Store
	cache   cache.Cache
	llm     gemini.Client
	prompts prompt.Builder

	models    Models
	tables    Tables
	cropIndex *ml.NameIndex

	workers        int
	lease          time.Duration
	explainTimeout time.Duration
	retryBackoff   time.Duration

	queue chan uuid.UUID
}

// New creates a pipeline Service. Call Run to start its workers.
func New(st store.Store, ca cache.Cache, llm gemini.Client, prompts prompt.Builder, m Models, t Tables, opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.JobLease <= 0 {
		opts.JobLease = 10 * time.Minute
	}
	if opts.ExplainTimeout <= 0 {
		opts.ExplainTimeout = 60 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	return &Service{
		store:          st,
		cache:          ca,
		llm:            llm,
		prompts:        prompts,
		models:         m,
		tables:         t,
		cropIndex:      t.Crop.NameIndex(),
		workers:        opts.Workers,
		lease:          opts.JobLease,
		explainTimeout: opts.ExplainTimeout,
		retryBackoff:   opts.RetryBackoff,
		queue:          make(chan uuid.UUID, opts.QueueSize),
	}
}

// Trigger creates a pending job and enqueues it for execution. Returns the job
// immediately without waiting for the pipeline to run.
func (s *Service) Trigger(ctx context.Context, userID uuid.UUID, kind string, input any) (*models.Job, error) {
	switch kind {
	case models.JobKindDiagnostic, models.JobKindCrop, models.JobKindFertilizer:
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding input: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Status:    models.JobStatusPending,
		Input:     payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, statusTTL)
	s.Enqueue(job.ID)

	return job, nil
}

// ReRun resets a terminal job back to pending, clears its result, and
// re-enqueues it. Returns store.ErrConflict while the job is pending or
// processing.
func (s *Service) ReRun(ctx context.Context, jobID uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	if err := s.store.ResetJob(ctx, jobID, userID); err != nil {
		return nil, err
	}

	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusPending, statusTTL)
	s.Enqueue(jobID)

	return s.store.GetJob(ctx, jobID, userID)
}

// Enqueue hands a job id to the workers. Never blocks the caller: when the
// buffer is full the send moves to a goroutine.
func (s *Service) Enqueue(jobID uuid.UUID) {
	select {
	case s.queue <- jobID:
	default:
		go func() { s.queue <- jobID }()
	}
}

// Run starts the workers and the stale-job reaper, and blocks until ctx is
// cancelled. Pending jobs that survived a restart are re-enqueued first.
func (s *Service) Run(ctx context.Context) error {
	if ids, err := s.store.ListPendingJobs(ctx); err != nil {
		slog.Warn("listing pending jobs at startup", "error", err)
	} else {
		for _, id := range ids {
			s.Enqueue(id)
		}
		if len(ids) > 0 {
			slog.Info("re-enqueued pending jobs", "count", len(ids))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case id := <-s.queue:
					s.process(id)
				}
			}
		})
	}
	g.Go(func() error { return s.reclaimLoop(ctx) })

	return g.Wait()
}

// reclaimLoop periodically resets processing jobs whose lease expired back to
// pending, so a crashed worker never strands a job.
func (s *Service) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.lease / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ids, err := s.store.ReclaimStaleJobs(ctx, time.Now().UTC().Add(-s.lease))
			if err != nil {
				slog.Warn("reclaiming stale jobs", "error", err)
				continue
			}
			for _, id := range ids {
				slog.Info("reclaimed stale job", "job_id", id)
				_ = s.cache.SetJobStatus(ctx, id, models.JobStatusPending, statusTTL)
				s.Enqueue(id)
			}
		}
	}
}

// process runs the full pipeline for one job id. It recovers from panics and
// never leaves a claimed job in processing: every path out writes a terminal
// status.
func (s *Service) process(jobID uuid.UUID) {
	ctx := context.Background()

	job, err := s.store.ClaimJob(ctx, jobID)
	if err != nil {
		// Lost the claim race, or the job was re-run/removed meanwhile.
		if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrNotFound) {
			slog.Error("claiming job", "error", err, "job_id", jobID)
		}
		return
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusProcessing, statusTTL)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job pipeline", "error", r, "job_id", jobID)
			s.fail(ctx, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := s.execute(ctx, job)
	if err != nil {
		slog.Warn("job failed", "job_id", jobID, "kind", job.Kind, "error", err)
		s.fail(ctx, jobID, err.Error())
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.fail(ctx, jobID, fmt.Sprintf("encoding result: %v", err))
		return
	}

	if err := s.store.CompleteJob(ctx, jobID, payload); err != nil {
		slog.Error("completing job", "error", err, "job_id", jobID)
		return
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusCompleted, statusTTL)
	slog.Info("job completed", "job_id", jobID, "kind", job.Kind)
}

func (s *Service) execute(ctx context.Context, job *models.Job) (any, error) {
	switch job.Kind {
	case models.JobKindDiagnostic:
		return s.runDiagnostic(ctx, job)
	case models.JobKindCrop:
		return s.runCrop(ctx, job)
	case models.JobKindFertilizer:
		return s.runFertilizer(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (s *Service) runDiagnostic(ctx context.Context, job *models.Job) (any, error) {
	var in models.DiagnosticInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}

	f, err := os.Open(in.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	features, err := ml.EncodeImage(f)
	if err != nil {
		return nil, err
	}

	idx, conf, err := s.models.Disease.Predict(features)
	if err != nil {
		return nil, err
	}

	name := s.tables.Disease.Resolve(idx)
	healthy := name == ml.HealthyLabel

	explanation, err := s.explain(ctx, s.prompts.Diagnostic(name, conf, healthy))
	if err != nil {
		return nil, err
	}

	return models.DiagnosticResult{
		DiseaseDetected: !healthy,
		DiseaseName:     name,
		Confidence:      conf,
		Explanation:     explanation,
	}, nil
}

func (s *Service) runCrop(ctx context.Context, job *models.Job) (any, error) {
	var in models.CropInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}

	features := ml.EncodeCrop(in)

	idx, conf, err := s.models.Crop.Predict(features)
	if err != nil {
		return nil, err
	}

	name := s.tables.Crop.Resolve(idx)

	explanation, err := s.explain(ctx, s.prompts.Crop(in, name))
	if err != nil {
		return nil, err
	}

	return models.RecommendationResult{
		PredictedLabel: idx,
		PredictedName:  name,
		Confidence:     conf,
		Explanation:    explanation,
	}, nil
}

func (s *Service) runFertilizer(ctx context.Context, job *models.Job) (any, error) {
	var in models.FertilizerInput
	if err := json.Unmarshal(job.Input, &in); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}

	features := ml.EncodeFertilizer(in, s.tables.Soils, s.cropIndex)

	idx, conf, err := s.models.Fertilizer.Predict(features)
	if err != nil {
		return nil, err
	}

	name := s.tables.Fertilizer.Resolve(idx)

	explanation, err := s.explain(ctx, s.prompts.Fertilizer(in, name))
	if err != nil {
		return nil, err
	}

	return models.RecommendationResult{
		PredictedLabel: idx,
		PredictedName:  name,
		Confidence:     conf,
		Explanation:    explanation,
	}, nil
}

// explain calls the generative service with a bounded timeout, retrying once
// after a short backoff for transport-level failures only. An empty generation
// is handled inside the client (fallback text) and is not an error here.
func (s *Service) explain(ctx context.Context, p string) (string, error) {
	text, err := s.generateOnce(ctx, p)
	if err != nil && retryable(err) {
		time.Sleep(s.retryBackoff)
		text, err = s.generateOnce(ctx, p)
	}
	if err != nil {
		return "", fmt.Errorf("explanation service: %w", err)
	}
	return text, nil
}

func (s *Service) generateOnce(ctx context.Context, p string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.explainTimeout)
	defer cancel()
	return s.llm.Generate(callCtx, p)
}

func retryable(err error) bool {
	return errors.Is(err, gemini.ErrUnreachable) || errors.Is(err, gemini.ErrTimeout)
}

func (s *Service) fail(ctx context.Context, jobID uuid.UUID, msg string) {
	if err := s.store.FailJob(ctx, jobID, msg); err != nil {
		slog.Error("marking job failed", "error", err, "job_id", jobID)
		return
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, statusTTL)
}
