// Package rotation runs the background refresh loop: it periodically scans
// the cache for entries that have gone stale and refreshes them through the
// resolver's fetch path before callers ever see an expired value.
//
// The scheduler has an explicit start/stop lifecycle tied to process
// lifetime, and takes an injectable ticker and clock so tests trigger sweeps
// deterministically instead of waiting on wall-clock timers.
package rotation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/systmms/credstore/internal/cache"
	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/pkg/provider"
)

// Refresher is the slice of the resolver the scheduler needs: the internal
// fetch path that bypasses the cache hit check.
type Refresher interface {
	Refresh(ctx context.Context, name provider.Name) error
}

// Ticker abstracts time.Ticker so tests can drive sweeps by hand.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Options configures a Scheduler.
type Options struct {
	// Interval between sweeps. Zero selects the default of 30 seconds.
	Interval time.Duration

	// JitterFraction spreads each sweep's start by a random delay in
	// [0, JitterFraction*Interval), so many processes with correlated
	// secret expiries do not stampede the backends together. Must be in
	// [0,1); zero disables jitter.
	JitterFraction float64

	// FailureLimit is the number of consecutive proactive refresh
	// failures after which an entry is marked Invalid. Zero selects the
	// default of 3.
	FailureLimit int

	// NewTicker and Sleep are injectable for tests.
	NewTicker func(time.Duration) Ticker
	Sleep     func(ctx context.Context, d time.Duration)
}

// Scheduler proactively refreshes near-expiry cache entries.
type Scheduler struct {
	cache     *cache.Cache
	refresher Refresher
	logger    *logging.Logger

	interval     time.Duration
	jitterFrac   float64
	failureLimit int
	newTicker    func(time.Duration) Ticker
	sleep        func(ctx context.Context, d time.Duration)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped scheduler.
func New(c *cache.Cache, r Refresher, logger *logging.Logger, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	limit := opts.FailureLimit
	if limit <= 0 {
		limit = 3
	}
	jitter := opts.JitterFraction
	if jitter < 0 || jitter >= 1 {
		jitter = 0
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = newRealTicker
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) {
			if d <= 0 {
				return
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Scheduler{
		cache:        c,
		refresher:    r,
		logger:       logger,
		interval:     interval,
		jitterFrac:   jitter,
		failureLimit: limit,
		newTicker:    newTicker,
		sleep:        sleep,
	}
}

// Start launches the background loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx)
}

// Stop halts the loop and waits for an in-progress sweep to finish.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if s.jitterFrac > 0 {
				s.sleep(ctx, time.Duration(rand.Float64()*s.jitterFrac*float64(s.interval)))
			}
			if ctx.Err() != nil {
				return
			}
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep: refresh every stale entry, then evict
// entries that are both invalid and expired. Exported so tests and the CLI
// can trigger sweeps deterministically.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	stale := s.cache.StaleNames()
	for _, name := range stale {
		if ctx.Err() != nil {
			break
		}
		s.refreshOne(ctx, name)
	}
	s.cache.SweepExpired()
	recordSweep(time.Since(start).Seconds(), len(stale))
}

func (s *Scheduler) refreshOne(ctx context.Context, name provider.Name) {
	if !s.cache.MarkRefreshing(name) {
		return
	}

	if err := s.refresher.Refresh(ctx, name); err != nil {
		// Previous value stays in the cache, servable as Stale.
		failures := s.cache.RecordRefreshFailure(name)
		recordRefresh("failure")
		s.logger.Warn("proactive refresh of %s failed (%d consecutive): %v", name, failures, err)
		if failures >= s.failureLimit {
			s.cache.MarkInvalid(name)
			recordInvalidated()
			s.logger.Error("entry %s marked invalid after %d failed refreshes; next resolve goes to backends", name, failures)
		}
		return
	}
	// Refresh succeeded: the resolver's fetch path already replaced the
	// entry (clearing the refreshing flag and failure count) via Put.
	recordRefresh("success")
	s.logger.Debug("proactively refreshed %s", name)
}
