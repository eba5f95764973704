package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/mmmqueue/internal/api/response"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the shared API key.
const APIKeyHeader = "X-API-Key"

// Auth checks the shared API key. The key may be configured in plain text,
// as a bcrypt hash, or both.
type Auth struct {
	key     []byte
	keyHash []byte
}

// NewAuth creates a new Auth middleware.
func NewAuth(cfg config.AuthConfig) *Auth {
	a := &Auth{}
	if cfg.APIKey != "" {
		a.key = []byte(cfg.APIKey)
	}
	if cfg.APIKeyHash != "" {
		a.keyHash = []byte(cfg.APIKeyHash)
	}
	return a
}

// Authenticate validates X-API-Key before the request body is read and
// records the caller's address in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Missing X-API-Key header", nil)
			return
		}

		if !a.valid(rawKey) {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Invalid API key", nil)
			return
		}

		r = r.WithContext(setClient(r.Context(), clientAddress(r)))
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) valid(rawKey string) bool {
	if len(a.key) > 0 && subtle.ConstantTimeCompare([]byte(rawKey), a.key) == 1 {
		return true
	}
	if len(a.keyHash) > 0 && bcrypt.CompareHashAndPassword(a.keyHash, []byte(rawKey)) == nil {
		return true
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
