package registry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/systmms/credstore/pkg/provider"
)

func TestCircuitMetricsRecordOpenTransitions(t *testing.T) {
	InitMetrics()

	reg := New(Options{FailureThreshold: 2, OpenFor: time.Minute},
		provider.NewFakeBackend("vault-main"))
	h := reg.All()[0].Health

	h.ReportFailure()
	assert.Equal(t, float64(0),
		testutil.ToFloat64(circuitOpenTotal.WithLabelValues("vault-main")),
		"a failure below the threshold must not count as an open transition")

	h.ReportFailure()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(circuitOpenTotal.WithLabelValues("vault-main")))
	assert.Equal(t, float64(CircuitOpen),
		testutil.ToFloat64(circuitState.WithLabelValues("vault-main")))

	// Further failures while already open are not new transitions.
	h.ReportFailure()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(circuitOpenTotal.WithLabelValues("vault-main")))

	h.ReportSuccess()
	assert.Equal(t, float64(CircuitClosed),
		testutil.ToFloat64(circuitState.WithLabelValues("vault-main")))
}

func TestCircuitMetricsTrackHalfOpenTrial(t *testing.T) {
	InitMetrics()

	now := time.Now()
	reg := New(Options{
		FailureThreshold: 1,
		OpenFor:          time.Minute,
		Now:              func() time.Time { return now },
	}, provider.NewFakeBackend("cloud"))
	h := reg.All()[0].Health

	h.ReportFailure()
	assert.Equal(t, float64(CircuitOpen),
		testutil.ToFloat64(circuitState.WithLabelValues("cloud")))

	now = now.Add(2 * time.Minute)
	assert.True(t, h.Allow())
	assert.Equal(t, float64(CircuitHalfOpen),
		testutil.ToFloat64(circuitState.WithLabelValues("cloud")))

	// A failed trial is a second open transition.
	h.ReportFailure()
	assert.Equal(t, float64(2),
		testutil.ToFloat64(circuitOpenTotal.WithLabelValues("cloud")))
	assert.Equal(t, float64(CircuitOpen),
		testutil.ToFloat64(circuitState.WithLabelValues("cloud")))
}
