// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applications_submitted_total",
			Help: "Total number of applications submitted per service category",
		},
		[]string{"category"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_status_transitions_total",
			Help: "Total number of applied status transitions",
		},
		[]string{"category", "from", "to"},
	)

	LifecycleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_lifecycle_failures_total",
			Help: "Total number of rejected lifecycle operations by error code",
		},
		[]string{"operation", "error_code"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_summary_duration_seconds",
			Help:    "Duration of a full dashboard aggregation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregationEntryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_summary_entry_failures_total",
			Help: "Registry entries treated as empty during aggregation",
		},
		[]string{"category", "reason"},
	)

	SummaryCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_summary_cache_requests_total",
			Help: "Summary cache lookups by result",
		},
		[]string{"result"},
	)
)
