package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope and
// counts it per route. http.ErrAbortHandler is re-raised so net/http can
// abort the connection silently.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			route := routePattern(r)
			metrics.HTTPPanicsTotal.WithLabelValues(route).Inc()
			slog.Error("panic recovered",
				"error", rec,
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern keeps the metric label bounded: job IDs never become labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
