package backends

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/credstore/pkg/provider"
)

// StaticBackend serves values straight from its config block. Useful for
// development, CI, and as the lowest-priority fallback for non-sensitive
// defaults.
type StaticBackend struct {
	name string

	mu     sync.RWMutex
	values map[provider.Name]string
	ttl    time.Duration
}

// NewStaticBackend creates a static backend over the given values.
func NewStaticBackend(name string, values map[string]string, ttl time.Duration) (*StaticBackend, error) {
	parsed := make(map[provider.Name]string, len(values))
	for ref, v := range values {
		n, err := provider.ParseName(ref)
		if err != nil {
			return nil, provider.MalformedError{Provider: name, Name: provider.Name{Key: ref}, Reason: err.Error()}
		}
		parsed[n] = v
	}
	return &StaticBackend{name: name, values: parsed, ttl: ttl}, nil
}

// NewStaticBackendBuilder builds a static backend from config. Expected block:
//
//	values:
//	  db/password: hunter2
//	ttl: 1h
func NewStaticBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	values := make(map[string]string)
	if m, ok := cfg["values"].(map[string]interface{}); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				values[k] = s
			}
		}
	}
	var ttl time.Duration
	if s, ok := cfg["ttl"].(string); ok && s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		ttl = d
	}
	return NewStaticBackend(name, values, ttl)
}

func (s *StaticBackend) Name() string { return s.name }

func (s *StaticBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	if err := ctx.Err(); err != nil {
		return provider.SecretValue{}, provider.UnavailableError{Provider: s.name, Err: err}
	}
	s.mu.RLock()
	v, ok := s.values[name]
	s.mu.RUnlock()
	if !ok {
		return provider.SecretValue{}, provider.NotFoundError{Provider: s.name, Name: name}
	}
	now := time.Now()
	sv := provider.SecretValue{
		Value:     v,
		Provider:  s.name,
		FetchedAt: now,
	}
	if s.ttl > 0 {
		sv.ExpiresAt = now.Add(s.ttl)
	}
	return sv, nil
}

func (s *StaticBackend) List(ctx context.Context) ([]provider.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]provider.Name, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	return names, nil
}

func (s *StaticBackend) HealthCheck(ctx context.Context) error { return nil }
