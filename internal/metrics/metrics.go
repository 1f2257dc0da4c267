// Package metrics exposes Prometheus instrumentation for evaluation runs and
// keeps a per-method history of run scores.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_runs_total",
			Help: "Total number of evaluation runs by outcome",
		},
		[]string{"method", "status"}, // "completed", "failed"
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covereval_run_duration_seconds",
			Help:    "Duration of evaluation runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"method"},
	)

	RunMAP = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "covereval_run_map",
			Help: "Mean average precision of the last completed run",
		},
		[]string{"method", "profile", "mode"},
	)

	// Query metrics
	QueryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_query_outcomes_total",
			Help: "Per-query search outcomes",
		},
		[]string{"method", "outcome"}, // "present", "absent", "failed"
	)

	SecondaryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_secondary_fallbacks_total",
			Help: "Queries whose secondary search failed and kept the primary response",
		},
		[]string{"method", "source"},
	)

	// Backend metrics
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covereval_backend_request_duration_seconds",
			Help:    "Duration of search backend calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_backend_requests_total",
			Help: "Search backend calls by result",
		},
		[]string{"operation", "result"}, // "success", "failure", "rejected"
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "covereval_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Bus metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covereval_bus_events_published_total",
			Help: "Run events published to the bus by result",
		},
		[]string{"topic", "result"},
	)

	BusPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covereval_bus_publish_duration_seconds",
			Help:    "Duration of bus publish calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

// Outcome labels for QueryOutcomes.
const (
	OutcomePresent = "present"
	OutcomeAbsent  = "absent"
	OutcomeFailed  = "failed"
)

// Result labels for BackendRequests.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// ObserveRun records a finished run.
func ObserveRun(method string, failed bool, elapsed time.Duration) {
	status := "completed"
	if failed {
		status = "failed"
	}
	RunsTotal.WithLabelValues(method, status).Inc()
	RunDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveBackend records one backend call.
func ObserveBackend(operation, result string, elapsed time.Duration) {
	BackendRequests.WithLabelValues(operation, result).Inc()
	BackendLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveBusPublish records one bus publish.
func ObserveBusPublish(topic string, err error, elapsed time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	BusPublished.WithLabelValues(topic, result).Inc()
	BusPublishLatency.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
