// Package main is the entrypoint for the AgroAssist API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rumenyi/agroassist/internal/api"
	"github.com/rumenyi/agroassist/internal/api/handler"
	mw "github.com/rumenyi/agroassist/internal/api/middleware"
	"github.com/rumenyi/agroassist/internal/api/response"
	"github.com/rumenyi/agroassist/internal/cache"
	"github.com/rumenyi/agroassist/internal/chat"
	"github.com/rumenyi/agroassist/internal/config"
	"github.com/rumenyi/agroassist/internal/gemini"
	"github.com/rumenyi/agroassist/internal/ml"
	"github.com/rumenyi/agroassist/internal/pipeline"
	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/prompt"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "gemini_model", cfg.Gemini.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Load label tables and model handles. A model that fails to load still
	// gets a handle; jobs against it fail with a clear message instead of
	// taking the whole server down.
	tables, err := loadTables(cfg.ML)
	if err != nil {
		return err
	}

	models := pipeline.Models{
		Disease:    ml.NewHandle("disease", cfg.ML.DiseaseModelPath),
		Crop:       ml.NewHandle("crop", cfg.ML.CropModelPath),
		Fertilizer: ml.NewHandle("fertilizer", cfg.ML.FertilizerModelPath),
	}
	for _, h := range []*ml.Handle{models.Disease, models.Crop, models.Fertilizer} {
		if !h.Available() {
			slog.Error("model unavailable, jobs of this kind will fail",
				"kind", h.Kind(), "error", h.LoadError())
			continue
		}
		slog.Info("model loaded", "kind", h.Kind())
	}

	// 6. Create Gemini client
	llm := gemini.NewHTTPClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
	prompts := prompt.Builder{Language: cfg.Gemini.Language}

	// 7. Create store and services
	pgStore := store.NewPostgresStore(pool)

	pipe := pipeline.New(pgStore, redisCache, llm, prompts, models, tables, pipeline.Options{
		Workers:        cfg.Pipeline.Workers,
		QueueSize:      cfg.Pipeline.QueueSize,
		JobLease:       cfg.Pipeline.JobLease,
		ExplainTimeout: cfg.Gemini.Timeout,
	})
	go func() {
		if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pipeline stopped", "error", err)
		}
	}()
	slog.Info("pipeline started", "workers", cfg.Pipeline.Workers)

	chatSvc := chat.NewService(pgStore, llm, cfg.Gemini.Timeout)

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		Health: healthHandler(pgStore, redisCache),
		Jobs:   handler.NewJobs(pipe, pgStore, cfg.Uploads.Dir),
		Chat:   handler.NewChat(chatSvc),
		Keys:   handler.NewKeys(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// loadTables reads the label and categorical tables. Unlike models these are
// tiny and required up front: without them no prediction can be named.
func loadTables(cfg config.MLConfig) (pipeline.Tables, error) {
	cropLabels, err := ml.LoadLabelTable(cfg.CropLabelsPath)
	if err != nil {
		return pipeline.Tables{}, fmt.Errorf("load crop labels: %w", err)
	}
	fertilizerLabels, err := ml.LoadLabelTable(cfg.FertilizerLabelsPath)
	if err != nil {
		return pipeline.Tables{}, fmt.Errorf("load fertilizer labels: %w", err)
	}
	soils, err := ml.LoadNameIndex(cfg.SoilTypesPath)
	if err != nil {
		return pipeline.Tables{}, fmt.Errorf("load soil types: %w", err)
	}

	return pipeline.Tables{
		Disease:    ml.DiseaseLabels(),
		Crop:       cropLabels,
		Fertilizer: fertilizerLabels,
		Soils:      soils,
	}, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
