// Package resolve implements the secret resolution façade: the single entry
// point callers use to obtain a secret. It combines the cache, the provider
// registry with its circuit breakers, and a per-name singleflight group so
// that concurrent callers for the same name join one backend fetch instead
// of issuing duplicates.
package resolve

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/systmms/credstore/internal/cache"
	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/internal/registry"
	"github.com/systmms/credstore/pkg/provider"
)

const (
	// DefaultMaxWait bounds how long a caller waits on a fetch when no
	// per-call value is given.
	DefaultMaxWait = 5 * time.Second

	// DefaultNetworkTimeout bounds a single backend fetch attempt. It is
	// deliberately shorter than DefaultMaxWait so a wedged backend cannot
	// consume a caller's whole wait budget.
	DefaultNetworkTimeout = 2 * time.Second
)

// Options adjust a single Resolve call.
type Options struct {
	// ForceRefresh bypasses the fresh cache hit path and goes to the
	// backends (still joining any fetch already in flight for the name).
	ForceRefresh bool

	// MaxWait bounds how long this caller waits for the fetch. Zero
	// selects the resolver's default. Timing out does not cancel the
	// fetch itself.
	MaxWait time.Duration
}

// Config wires a Resolver.
type Config struct {
	Cache    *cache.Cache
	Registry *registry.Registry
	Logger   *logging.Logger

	// DefaultMaxWait and NetworkTimeout default as the constants above.
	// NetworkTimeout must be shorter than DefaultMaxWait.
	DefaultMaxWait time.Duration
	NetworkTimeout time.Duration

	// DegradedHandler, if set, is called whenever a stale value is served
	// because all backends were exhausted. This is the out-of-band
	// staleness signal; the Resolve call itself still succeeds.
	DegradedHandler func(name provider.Name, cause error)
}

// Resolver is the façade combining cache, registry and singleflight. Safe
// for concurrent use.
type Resolver struct {
	cache          *cache.Cache
	registry       *registry.Registry
	logger         *logging.Logger
	defaultMaxWait time.Duration
	networkTimeout time.Duration
	degraded       func(name provider.Name, cause error)
	flight         singleflight.Group
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	maxWait := cfg.DefaultMaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	netTimeout := cfg.NetworkTimeout
	if netTimeout <= 0 {
		netTimeout = DefaultNetworkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Resolver{
		cache:          cfg.Cache,
		registry:       cfg.Registry,
		logger:         logger,
		defaultMaxWait: maxWait,
		networkTimeout: netTimeout,
		degraded:       cfg.DegradedHandler,
	}
}

// Resolve returns the current value of a secret.
//
// A fresh cache hit returns immediately with no backend contact. Otherwise
// the caller joins the per-name fetch (starting it if none is in flight) and
// waits up to MaxWait. The only user-visible failures are TimeoutError,
// SecretUnavailableError, and the caller's own context error; per-backend
// errors are absorbed by the fallback walk.
func (r *Resolver) Resolve(ctx context.Context, name provider.Name, opts Options) (provider.SecretValue, error) {
	if !opts.ForceRefresh {
		if entry, ok := r.cache.Get(name); ok && entry.State == cache.StateFresh {
			recordResolve(outcomeHit)
			return entry.Value, nil
		}
	}

	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = r.defaultMaxWait
	}

	// The fetch runs on a context detached from this caller: a waiter
	// timing out or cancelling must not kill the fetch other waiters are
	// joined to.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(name.String(), func() (interface{}, error) {
		v, err := r.fetchOnce(fetchCtx, name)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			recordJoin()
		}
		if res.Err != nil {
			return r.settleFailure(name, res.Err)
		}
		recordResolve(outcomeFetched)
		return res.Val.(provider.SecretValue), nil
	case <-ctx.Done():
		recordResolve(outcomeCancelled)
		return provider.SecretValue{}, ctx.Err()
	case <-timer.C:
		recordResolve(outcomeTimeout)
		return provider.SecretValue{}, TimeoutError{Name: name, Wait: maxWait}
	}
}

// Refresh runs the backend walk for name outside the cache hit path and
// replaces the cache entry on success. It is the rotation scheduler's entry
// point; concurrent Resolve callers join the same flight. Unlike Resolve it
// never falls back to a stale value: the scheduler needs to see the failure.
func (r *Resolver) Refresh(ctx context.Context, name provider.Name) error {
	ch := r.flight.DoChan(name.String(), func() (interface{}, error) {
		v, err := r.fetchOnce(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settleFailure decides what an exhausted fetch means for this caller: a
// servable stale entry is degraded success, anything else is the hard
// failure.
func (r *Resolver) settleFailure(name provider.Name, fetchErr error) (provider.SecretValue, error) {
	var unavailable SecretUnavailableError
	if errors.As(fetchErr, &unavailable) {
		if entry, ok := r.cache.Get(name); ok && entry.Servable() {
			recordResolve(outcomeDegraded)
			r.logger.Warn("serving stale value for %s: %v", name, fetchErr)
			if r.degraded != nil {
				r.degraded(name, fetchErr)
			}
			return entry.Value, nil
		}
	}
	recordResolve(outcomeUnavailable)
	return provider.SecretValue{}, fetchErr
}

// fetchOnce walks the registry in priority order and returns the first
// successful value, populating the cache. Provider-local errors are logged
// against the backend's health and the walk continues; exhaustion yields
// SecretUnavailableError.
func (r *Resolver) fetchOnce(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	var attempted []string

	for _, e := range r.registry.ResolveOrder() {
		if !e.Health.Allow() {
			continue
		}
		backendName := e.Backend.Name()
		attempted = append(attempted, backendName)

		fetchCtx, cancel := context.WithTimeout(ctx, r.networkTimeout)
		v, err := e.Backend.Fetch(fetchCtx, name)
		cancel()

		if err == nil {
			e.Health.ReportSuccess()
			recordAttempt(backendName, "success")
			if v.Provider == "" {
				v.Provider = backendName
			}
			if v.FetchedAt.IsZero() {
				v.FetchedAt = time.Now()
			}
			r.cache.Put(name, v)
			r.logger.Debug("resolved %s from %s", name, backendName)
			return v, nil
		}

		switch {
		case provider.IsNotFound(err):
			// Not a failure for this backend; the name just lives
			// elsewhere.
			e.Health.ReportNotFound()
			recordAttempt(backendName, "not_found")
			r.logger.Debug("%s: %s not found, trying next backend", backendName, name)
		case provider.IsUnauthorized(err):
			e.Health.ReportFailure()
			recordAttempt(backendName, "unauthorized")
			r.logger.Warn("%s rejected credentials while fetching %s", backendName, name)
		case provider.IsMalformed(err):
			e.Health.ReportFailure()
			recordAttempt(backendName, "malformed")
			r.logger.Error("%s returned malformed data for %s", backendName, name)
		default:
			e.Health.ReportFailure()
			recordAttempt(backendName, "unavailable")
			r.logger.Warn("%s unavailable while fetching %s: %v", backendName, name, err)
		}
	}

	return provider.SecretValue{}, SecretUnavailableError{Name: name, Attempted: attempted}
}

// Invalidate removes the cached entry for name. The next resolve performs a
// full synchronous fetch.
func (r *Resolver) Invalidate(name provider.Name) {
	r.cache.Invalidate(name)
}

// Warm pre-populates the cache from every backend that supports listing.
// A non-empty namespace restricts warming to that namespace. Fetch failures
// during warming are ignored; warming is best effort.
func (r *Resolver) Warm(ctx context.Context, namespace string) int {
	warmed := 0
	seen := make(map[provider.Name]bool)
	for _, e := range r.registry.All() {
		names, err := e.Backend.List(ctx)
		if err != nil {
			if !errors.Is(err, provider.ErrListUnsupported) {
				r.logger.Debug("warm: list failed for %s: %v", e.Backend.Name(), err)
			}
			continue
		}
		for _, name := range names {
			if seen[name] || (namespace != "" && name.Namespace != namespace) {
				continue
			}
			seen[name] = true
			if _, err := r.Resolve(ctx, name, Options{}); err == nil {
				warmed++
			}
		}
	}
	return warmed
}
