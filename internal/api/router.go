package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/mmmqueue/internal/api/middleware"
	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	ReadyHandler   http.HandlerFunc
	SpecHandler    http.HandlerFunc
	MetricsHandler http.Handler
	SubmitHandler  http.HandlerFunc
	StatusHandler  http.HandlerFunc
	SummaryHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/ready", orNotImplemented(deps.ReadyHandler))
	r.Get("/api_spec.json", orNotImplemented(deps.SpecHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/run_mmm_async", orNotImplemented(deps.SubmitHandler))
		r.Get("/get_task_status", orNotImplemented(deps.StatusHandler))
		r.Get("/get_summary_statistics", orNotImplemented(deps.SummaryHandler))
	})

	return r
}

// ComputeDependencies configures the compute backend router.
type ComputeDependencies struct {
	// Identity guards /run_mmm; nil leaves it open.
	Identity      func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	RunHandler    http.HandlerFunc
}

// NewComputeRouter builds the router of the compute backend.
func NewComputeRouter(deps ComputeDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Group(func(r chi.Router) {
		if deps.Identity != nil {
			r.Use(deps.Identity)
		}
		r.Post("/run_mmm", orNotImplemented(deps.RunHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
