package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "cohort_"

var decisionCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "assignment_decisions_total",
		Help: "Number of assignment decisions made, by outcome.",
	},
	[]string{"outcome"},
)

var storeRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "store_request_duration_seconds",
		Help:    "Time spent in assignment store requests.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	},
	[]string{"operation"},
)

func RecordDecision(outcome string) {
	decisionCounter.WithLabelValues(outcome).Inc()
}

func RecordStoreRequestDuration(operation string, duration time.Duration) {
	storeRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
