package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
)

// Checker pings the service dependencies.
type Checker interface {
	Check(ctx context.Context) (map[string]string, bool)
}

const readyTimeout = 3 * time.Second

// NewHealthHandler returns a liveness handler for GET /health.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, map[string]string{"status": "ok"})
	}
}

// NewReadyHandler returns a readiness handler for GET /ready.
func NewReadyHandler(c Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks, ok := c.Check(ctx)
		if !ok {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more dependencies are unavailable", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// NewSpecHandler serves the OpenAPI document.
func NewSpecHandler(doc []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Raw(w, doc)
	}
}
