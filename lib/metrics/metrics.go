// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog metrics
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of catalog API requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CatalogDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of catalog API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Recommendation metrics
	SignalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_signal_outcomes_total",
			Help: "Outcome of each recommendation signal query",
		},
		[]string{"signal", "outcome"},
	)

	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Recommendation responses by source",
		},
		[]string{"source"},
	)

	RecommendationSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_size",
			Help:    "Number of movies returned per recommendation",
			Buckets: prometheus.LinearBuckets(0, 2, 6),
		},
	)
)

// RecordCatalogRequest records the outcome and latency of one catalog call.
func RecordCatalogRequest(operation, outcome string, elapsed time.Duration) {
	CatalogRequests.WithLabelValues(operation, outcome).Inc()
	CatalogDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordSignal records the outcome of a recommendation signal.
func RecordSignal(signal, outcome string) {
	SignalOutcomes.WithLabelValues(signal, outcome).Inc()
}

// RecordRecommendation records a served recommendation and its size.
func RecordRecommendation(source string, size int) {
	Recommendations.WithLabelValues(source).Inc()
	RecommendationSize.Observe(float64(size))
}
