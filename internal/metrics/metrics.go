package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mmm_jobs_submitted_total",
		Help: "Total number of fit jobs accepted by the API",
	})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmm_jobs_completed_total",
		Help: "Total number of fit jobs that reached a terminal state",
	}, []string{"state"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mmm_job_duration_seconds",
		Help:    "Wall time from claim to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mmm_workers_busy",
		Help: "Worker slots currently executing a job",
	})

	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mmm_broker_reconnects_total",
		Help: "Broker connection attempts that failed and were retried",
	})

	HTTPPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmm_http_panics_total",
		Help: "Handler panics recovered by the HTTP middleware, by route pattern",
	}, []string{"route"})

	RemoteDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmm_remote_dispatch_total",
		Help: "Remote compute calls by outcome",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
