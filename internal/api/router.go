// Package api builds the HTTP surface: router, middleware, and handlers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rumenyi/agroassist/internal/api/handler"
	mw "github.com/rumenyi/agroassist/internal/api/middleware"
	"github.com/rumenyi/agroassist/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	Health http.HandlerFunc
	Jobs   *handler.Jobs
	Chat   *handler.Chat
	Keys   *handler.Keys
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", deps.Health)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		mountJobRoutes(r, "/api/v1/diagnostics", deps.Jobs.CreateDiagnostic, deps.Jobs, models.JobKindDiagnostic)
		mountJobRoutes(r, "/api/v1/crops", deps.Jobs.CreateCrop, deps.Jobs, models.JobKindCrop)
		mountJobRoutes(r, "/api/v1/fertilizers", deps.Jobs.CreateFertilizer, deps.Jobs, models.JobKindFertilizer)

		r.Route("/api/v1/conversations", func(r chi.Router) {
			r.Post("/", deps.Chat.CreateConversation)
			r.Get("/{conversationID}", deps.Chat.GetConversation)
			r.Post("/{conversationID}/messages", deps.Chat.PostMessage)
			r.Get("/{conversationID}/messages", deps.Chat.ListMessages)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", deps.Keys.Create)
			r.Get("/api/v1/admin/keys", deps.Keys.List)
			r.Delete("/api/v1/admin/keys/{keyID}", deps.Keys.Revoke)
		})
	})

	return r
}

// mountJobRoutes wires the shared create/poll/list/rerun shape each job kind
// exposes.
func mountJobRoutes(r chi.Router, prefix string, create http.HandlerFunc, jobs *handler.Jobs, kind string) {
	r.Route(prefix, func(r chi.Router) {
		r.Post("/", create)
		r.Get("/", jobs.List(kind))
		r.Get("/{jobID}", jobs.Get(kind))
		r.Post("/{jobID}/rerun", jobs.ReRun(kind))
	})
}
