// Package registry holds the ordered set of configured backends together
// with per-backend health state. A standard circuit breaker guards each
// backend: repeated failures open the circuit and stop the resolver from
// hammering a down store, a half-open trial after the cooldown detects
// recovery.
package registry

import (
	"sync"
	"time"

	"github.com/systmms/credstore/pkg/provider"
)

// CircuitState is the breaker state of a single backend.
type CircuitState int

const (
	// CircuitClosed: the backend is attempted normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen: the backend is skipped until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen: exactly one trial fetch is permitted; its outcome
	// re-closes or re-opens the circuit.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Health tracks failures for one backend. All mutations hold the per-backend
// mutex so the failure counter and circuit transition stay atomic.
type Health struct {
	mu                  sync.Mutex
	provider            string
	consecutiveFailures int
	state               CircuitState
	lastFailure         time.Time
	trialInFlight       bool

	failureThreshold int
	openFor          time.Duration
	now              func() time.Time
}

// HealthSnapshot is a copy of the health state for diagnostics.
type HealthSnapshot struct {
	Provider            string
	ConsecutiveFailures int
	State               CircuitState
	LastFailure         time.Time
}

// Allow reports whether a fetch attempt may proceed right now. An Open
// circuit whose cooldown has elapsed moves to HalfOpen and grants the single
// trial slot; further callers are refused until the trial reports back.
func (h *Health) Allow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if h.now().Sub(h.lastFailure) < h.openFor {
			return false
		}
		h.state = CircuitHalfOpen
		h.trialInFlight = true
		recordCircuitState(h.provider, h.state)
		return true
	case CircuitHalfOpen:
		if h.trialInFlight {
			return false
		}
		h.trialInFlight = true
		return true
	}
	return false
}

// ReportSuccess records a successful fetch: the failure counter resets and
// the circuit closes.
func (h *Health) ReportSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.state = CircuitClosed
	h.trialInFlight = false
	recordCircuitState(h.provider, h.state)
}

// ReportNotFound records a fetch that answered "no such secret". The
// backend responded, so a half-open trial re-closes the circuit, but the
// failure counter is left untouched: a missing name is not a backend
// failure.
func (h *Health) ReportNotFound() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trialInFlight = false
	if h.state == CircuitHalfOpen {
		h.state = CircuitClosed
		h.consecutiveFailures = 0
		recordCircuitState(h.provider, h.state)
	}
}

// ReportFailure records a failed fetch. Once consecutive failures exceed the
// threshold the circuit opens; a failed half-open trial re-opens immediately.
func (h *Health) ReportFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastFailure = h.now()
	h.trialInFlight = false
	wasOpen := h.state == CircuitOpen
	if h.state == CircuitHalfOpen || h.consecutiveFailures >= h.failureThreshold {
		h.state = CircuitOpen
		recordCircuitState(h.provider, h.state)
		if !wasOpen {
			recordCircuitOpened(h.provider)
		}
	}
}

// State returns the current circuit state, moving Open to HalfOpen if the
// cooldown has elapsed (without claiming the trial slot).
func (h *Health) State() CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == CircuitOpen && h.now().Sub(h.lastFailure) >= h.openFor {
		return CircuitHalfOpen
	}
	return h.state
}

// Snapshot returns a copy of the health state.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		Provider:            h.provider,
		ConsecutiveFailures: h.consecutiveFailures,
		State:               h.state,
		LastFailure:         h.lastFailure,
	}
}

// Entry pairs a backend with its health state.
type Entry struct {
	Backend provider.Backend
	Health  *Health
}

// Options configures the registry's circuit breakers.
type Options struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// backend's circuit. Zero selects the default of 3.
	FailureThreshold int

	// OpenFor is the cooldown before an open circuit permits a half-open
	// trial. Zero selects the default of 30 seconds.
	OpenFor time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Registry is the ordered collection of configured backends. The order is
// the configured fetch priority. Safe for concurrent use; the entry slice is
// immutable after construction, only health state mutates.
type Registry struct {
	entries []*Entry
}

// New builds a registry over backends in the given priority order.
func New(opts Options, backends ...provider.Backend) *Registry {
	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	openFor := opts.OpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	entries := make([]*Entry, 0, len(backends))
	for _, b := range backends {
		entries = append(entries, &Entry{
			Backend: b,
			Health: &Health{
				provider:         b.Name(),
				failureThreshold: threshold,
				openFor:          openFor,
				now:              now,
			},
		})
	}
	return &Registry{entries: entries}
}

// ResolveOrder returns the backends to attempt, in configured priority,
// skipping any whose circuit is Open. The half-open trial slot is NOT
// claimed here; callers must still gate each attempt with Health.Allow()
// immediately before fetching, and report the outcome via
// ReportSuccess/ReportFailure so a claimed trial slot is released.
func (r *Registry) ResolveOrder() []*Entry {
	var order []*Entry
	for _, e := range r.entries {
		if e.Health.State() != CircuitOpen {
			order = append(order, e)
		}
	}
	return order
}

// All returns every configured entry in priority order, regardless of
// circuit state. Used for health checks and status reporting.
func (r *Registry) All() []*Entry {
	return r.entries
}

// Len returns the number of configured backends.
func (r *Registry) Len() int {
	return len(r.entries)
}
