package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestHandler_ExposesJobMetrics(t *testing.T) {
	metrics.JobsSubmittedTotal.Inc()
	metrics.JobsFinishedTotal.WithLabelValues("SUCCESS").Inc()
	metrics.JobDuration.Observe(2)
	metrics.RemoteDispatchTotal.WithLabelValues("ok").Inc()

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, name := range []string{
		"mmm_jobs_submitted_total",
		`mmm_jobs_completed_total{state="SUCCESS"}`,
		"mmm_job_duration_seconds_bucket",
		"mmm_workers_busy",
		"mmm_broker_reconnects_total",
		`mmm_remote_dispatch_total{outcome="ok"}`,
	} {
		assert.Contains(t, body, name)
	}
}
