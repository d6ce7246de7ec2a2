package registry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitState     *prometheus.GaugeVec
	circuitOpenTotal *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the circuit breaker's Prometheus metrics. Call once
// at startup when metrics are enabled; recording is a no-op otherwise.
func InitMetrics() {
	metricsOnce.Do(func() {
		circuitState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credstore_circuit_state",
				Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
			},
			[]string{"provider"},
		)

		circuitOpenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credstore_circuit_opened_total",
				Help: "Circuit open transitions per provider",
			},
			[]string{"provider"},
		)

		metricsRegistered = true
	})
}

func recordCircuitState(providerName string, state CircuitState) {
	if !metricsRegistered || circuitState == nil {
		return
	}
	circuitState.WithLabelValues(providerName).Set(float64(state))
}

func recordCircuitOpened(providerName string) {
	if !metricsRegistered || circuitOpenTotal == nil {
		return
	}
	circuitOpenTotal.WithLabelValues(providerName).Inc()
}
