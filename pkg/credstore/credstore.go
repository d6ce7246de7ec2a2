// Package credstore wires the backends, cache, resolver, and rotation
// scheduler into one service with a small public surface. Applications
// construct a Service from a parsed configuration, Start it, and call
// Resolve for every secret read.
package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/credstore/internal/backends"
	"github.com/systmms/credstore/internal/cache"
	"github.com/systmms/credstore/internal/config"
	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/internal/registry"
	"github.com/systmms/credstore/internal/resolve"
	"github.com/systmms/credstore/internal/rotation"
	"github.com/systmms/credstore/pkg/provider"
)

// ResolveOptions mirrors the per-call resolve knobs.
type ResolveOptions struct {
	// ForceRefresh bypasses the cache and contacts the backends.
	ForceRefresh bool

	// MaxWait bounds how long this caller blocks on a backend fetch.
	// Zero uses the configured default.
	MaxWait time.Duration
}

// Options tunes service construction beyond what the config file carries.
type Options struct {
	// Logger receives structured output. Nil selects a quiet default.
	Logger *logging.Logger

	// Metrics registers the prometheus collectors on the default
	// registry when true.
	Metrics bool

	// Catalog overrides the backend catalog, letting tests register
	// fake backend types.
	Catalog *backends.Catalog

	// DegradedHandler fires whenever a resolve is answered from a stale
	// cache entry because every backend failed.
	DegradedHandler func(name provider.Name, cause error)
}

// Service is the secret retrieval layer: priority-ordered backends behind a
// read-through cache with proactive rotation.
type Service struct {
	logger    *logging.Logger
	cache     *cache.Cache
	registry  *registry.Registry
	resolver  *resolve.Resolver
	scheduler *rotation.Scheduler
	closers   []func() error
}

// New builds a Service from a validated configuration.
func New(def *config.Definition, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(false, true)
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = backends.NewCatalog()
	}
	if opts.Metrics {
		resolve.InitMetrics()
		rotation.InitMetrics()
		registry.InitMetrics()
	}

	var built []provider.Backend
	var closers []func() error
	for _, pc := range def.Providers {
		if !catalog.IsSupported(pc.Type) {
			return nil, fmt.Errorf("provider %q: unknown backend type %q (supported: %v)",
				pc.Name, pc.Type, catalog.SupportedTypes())
		}
		b, err := catalog.Build(pc.Type, pc.Name, pc.Config)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if c, ok := b.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
		if d := pc.Timeout(); d > 0 {
			b = withTimeout(b, d)
		}
		built = append(built, b)
		logger.Debug("configured provider %s (type %s)", pc.Name, pc.Type)
	}

	c := cache.New(cache.Options{
		LeadFraction: def.Cache.RefreshLeadFraction,
		DefaultTTL:   config.Duration(def.Cache.DefaultTTL, 0),
	})
	reg := registry.New(registry.Options{
		FailureThreshold: def.Circuit.FailureThreshold,
		OpenFor:          config.Duration(def.Circuit.OpenFor, 0),
	}, built...)
	resolver := resolve.New(resolve.Config{
		Cache:           c,
		Registry:        reg,
		Logger:          logger,
		DefaultMaxWait:  config.Duration(def.Resolver.DefaultMaxWait, 0),
		DegradedHandler: opts.DegradedHandler,
	})
	scheduler := rotation.New(c, resolver, logger, rotation.Options{
		Interval:       config.Duration(def.Rotation.Interval, 0),
		JitterFraction: def.Rotation.JitterFraction,
		FailureLimit:   def.Rotation.ProactiveRefreshFailureLimit,
	})

	return &Service{
		logger:    logger,
		cache:     c,
		registry:  reg,
		resolver:  resolver,
		scheduler: scheduler,
		closers:   closers,
	}, nil
}

// Start launches the rotation scheduler. Optional: a service without Start
// still resolves, it just never refreshes proactively.
func (s *Service) Start(ctx context.Context) {
	s.scheduler.Start(ctx)
}

// Resolve returns the secret for name, from cache when fresh.
func (s *Service) Resolve(ctx context.Context, name provider.Name, opts ResolveOptions) (provider.SecretValue, error) {
	return s.resolver.Resolve(ctx, name, resolve.Options{
		ForceRefresh: opts.ForceRefresh,
		MaxWait:      opts.MaxWait,
	})
}

// ResolveRef parses a namespace/key reference and resolves it.
func (s *Service) ResolveRef(ctx context.Context, ref string, opts ResolveOptions) (provider.SecretValue, error) {
	name, err := provider.ParseName(ref)
	if err != nil {
		return provider.SecretValue{}, err
	}
	return s.Resolve(ctx, name, opts)
}

// Invalidate drops the cached entry for name.
func (s *Service) Invalidate(name provider.Name) {
	s.resolver.Invalidate(name)
}

// Warm pre-populates the cache from every backend that supports listing and
// returns how many entries were loaded. A non-empty namespace restricts
// warming to that namespace.
func (s *Service) Warm(ctx context.Context, namespace string) int {
	return s.resolver.Warm(ctx, namespace)
}

// Providers returns each backend's name and current circuit snapshot, in
// priority order.
func (s *Service) Providers() []ProviderStatus {
	entries := s.registry.All()
	out := make([]ProviderStatus, 0, len(entries))
	for _, e := range entries {
		snap := e.Health.Snapshot()
		out = append(out, ProviderStatus{
			Name:                e.Backend.Name(),
			Circuit:             snap.State.String(),
			ConsecutiveFailures: snap.ConsecutiveFailures,
		})
	}
	return out
}

// ProviderStatus is one row of Providers output.
type ProviderStatus struct {
	Name                string
	Circuit             string
	ConsecutiveFailures int
}

// CheckHealth runs every backend's health probe and returns the failures
// keyed by backend name. An empty map means all healthy.
func (s *Service) CheckHealth(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, e := range s.registry.All() {
		if err := e.Backend.HealthCheck(ctx); err != nil {
			failures[e.Backend.Name()] = err
		}
	}
	return failures
}

// CacheSize reports how many entries the cache currently holds.
func (s *Service) CacheSize() int {
	return s.cache.Len()
}

// Close stops the scheduler and releases backend resources.
func (s *Service) Close() error {
	s.scheduler.Stop()
	var firstErr error
	for _, close := range s.closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// timeoutBackend wraps a backend with a per-call deadline from the
// provider's timeout_ms setting.
type timeoutBackend struct {
	provider.Backend
	timeout time.Duration
}

func withTimeout(b provider.Backend, d time.Duration) provider.Backend {
	return timeoutBackend{Backend: b, timeout: d}
}

func (t timeoutBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.Fetch(ctx, name)
}

func (t timeoutBackend) List(ctx context.Context) ([]provider.Name, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.List(ctx)
}

func (t timeoutBackend) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Backend.HealthCheck(ctx)
}
