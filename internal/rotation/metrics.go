package rotation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal    *prometheus.CounterVec
	entriesInvalid  prometheus.Counter
	sweepDuration   prometheus.Histogram
	entriesScanned  prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the scheduler's Prometheus metrics. Call once at
// startup when metrics are enabled; recording is a no-op otherwise.
func InitMetrics() {
	metricsOnce.Do(func() {
		refreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credstore_proactive_refresh_total",
				Help: "Proactive refresh attempts by outcome",
			},
			[]string{"outcome"},
		)

		entriesInvalid = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credstore_entries_invalidated_total",
				Help: "Cache entries marked invalid after repeated refresh failures",
			},
		)

		sweepDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "credstore_rotation_sweep_duration_seconds",
				Help:    "Duration of rotation sweeps in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		)

		entriesScanned = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credstore_rotation_entries_scanned_total",
				Help: "Stale entries picked up by rotation sweeps",
			},
		)

		metricsRegistered = true
	})
}

func recordRefresh(outcome string) {
	if !metricsRegistered || refreshTotal == nil {
		return
	}
	refreshTotal.WithLabelValues(outcome).Inc()
}

func recordInvalidated() {
	if !metricsRegistered || entriesInvalid == nil {
		return
	}
	entriesInvalid.Inc()
}

func recordSweep(seconds float64, scanned int) {
	if !metricsRegistered {
		return
	}
	if sweepDuration != nil {
		sweepDuration.Observe(seconds)
	}
	if entriesScanned != nil {
		entriesScanned.Add(float64(scanned))
	}
}
