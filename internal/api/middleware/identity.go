package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"google.golang.org/api/idtoken"
)

// TokenValidator checks a bearer identity token against an audience.
type TokenValidator func(ctx context.Context, token, audience string) error

// GoogleTokenValidator verifies Google-signed ID tokens.
func GoogleTokenValidator(ctx context.Context, token, audience string) error {
	_, err := idtoken.Validate(ctx, token, audience)
	return err
}

// IdentityToken rejects requests whose bearer token does not validate for
// audience. It guards the compute backend, which only the workers call.
func IdentityToken(audience string, validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHORIZED", "Missing or invalid Authorization header", nil)
				return
			}
			if err := validate(r.Context(), token, audience); err != nil {
				slog.Warn("identity token rejected", "error", err, "remote_addr", r.RemoteAddr)
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHORIZED", "Invalid identity token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
