package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/mmmqueue/internal/api"
	mw "github.com/kiranshivaraju/mmmqueue/internal/api/middleware"
	"github.com/kiranshivaraju/mmmqueue/internal/cache"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(config.AuthConfig{APIKey: testKey}),
		RateLimit:      mw.NewRateLimit(cache.NewMemoryCache(), 60),
		HealthHandler:  ok,
		SubmitHandler:  ok,
		StatusHandler:  ok,
		SummaryHandler: ok,
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/run_mmm_async"},
		{"GET", "/get_task_status?task_id=x"},
		{"GET", "/get_summary_statistics?task_id=x"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "UNAUTHORIZED", errObj["code"])
		})
	}
}

func TestRouter_ProtectedEndpoints_WithKey(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("POST", "/run_mmm_async", strings.NewReader(`{}`))
	req.Header.Set(mw.APIKeyHeader, testKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UnsetHandler_NotImplemented(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MetricsMounted(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(config.AuthConfig{APIKey: testKey}),
		RateLimit:      mw.NewRateLimit(cache.NewMemoryCache(), 60),
		MetricsHandler: http.HandlerFunc(ok),
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestComputeRouter_IdentityGuardsRun(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	router := api.NewComputeRouter(api.ComputeDependencies{
		Identity:      deny,
		HealthHandler: ok,
		RunHandler:    ok,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/run_mmm", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestComputeRouter_NoIdentity(t *testing.T) {
	router := api.NewComputeRouter(api.ComputeDependencies{RunHandler: ok})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/run_mmm", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}
