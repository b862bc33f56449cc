// README: Prometheus metrics for matching, fallback and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssignmentsTotal is labelled by outcome: assigned, no_candidates, no_suitable_driver, not_assignable, error.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kamuit", Name: "assignments_total", Help: "Assignment passes by outcome"},
		[]string{"outcome"},
	)
	AssignmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kamuit",
		Name:      "assignment_latency_seconds",
		Help:      "Latency of a full assignment pass",
		Buckets:   prometheus.DefBuckets,
	})
	CandidatesEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kamuit",
		Name:      "assignment_candidates",
		Help:      "Number of candidates scored per assignment pass",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
	RoutingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kamuit",
		Name:      "routing_failures_total",
		Help:      "Routing calls that failed during detour scoring",
	})
	FallbackReverts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kamuit",
		Name:      "fallback_reverts_total",
		Help:      "Accepted rides reverted to requested after driver timeout",
	})
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kamuit", Name: "ride_transitions_total", Help: "Ride lifecycle transitions"},
		[]string{"to"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kamuit", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kamuit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
