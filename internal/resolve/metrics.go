package resolve

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolveTotal        *prometheus.CounterVec
	backendAttemptTotal *prometheus.CounterVec
	inflightJoins       prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the resolver's Prometheus metrics. Call once at
// startup when metrics are enabled; recording is a no-op otherwise.
func InitMetrics() {
	metricsOnce.Do(func() {
		resolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credstore_resolve_total",
				Help: "Total resolve calls by outcome",
			},
			[]string{"outcome"},
		)

		backendAttemptTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credstore_backend_attempts_total",
				Help: "Backend fetch attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		)

		inflightJoins = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credstore_inflight_joins_total",
				Help: "Resolve calls that joined an already in-flight fetch",
			},
		)

		metricsRegistered = true
	})
}

// Resolve outcomes.
const (
	outcomeHit         = "cache_hit"
	outcomeFetched     = "fetched"
	outcomeDegraded    = "degraded_stale"
	outcomeUnavailable = "unavailable"
	outcomeTimeout     = "timeout"
	outcomeCancelled   = "cancelled"
)

func recordResolve(outcome string) {
	if !metricsRegistered || resolveTotal == nil {
		return
	}
	resolveTotal.WithLabelValues(outcome).Inc()
}

func recordAttempt(providerName, outcome string) {
	if !metricsRegistered || backendAttemptTotal == nil {
		return
	}
	backendAttemptTotal.WithLabelValues(providerName, outcome).Inc()
}

func recordJoin() {
	if !metricsRegistered || inflightJoins == nil {
		return
	}
	inflightJoins.Inc()
}
