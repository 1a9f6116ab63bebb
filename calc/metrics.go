package calc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// calculations counts calculation requests by operation and outcome.
	calculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matrixcalc_calculations_total",
		Help: "Calculations by operation and outcome",
	}, []string{"operation", "outcome"})

	// computeDuration tracks parse+compute latency, excluding persistence.
	computeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matrixcalc_compute_duration_seconds",
		Help:    "Parse and compute duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"operation"})

	snapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matrixcalc_snapshot_failures_total",
		Help: "Snapshot pages that failed to render",
	})
)
