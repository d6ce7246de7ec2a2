package provider

import (
	"context"
	"sync"
	"testing"
	"time"
)

// FakeBackend is an in-memory Backend for tests. It counts calls per method
// and per name so tests can assert how often the resolver actually contacted
// a store, and it can be configured to fail specific names or every call.
//
// All methods are safe for concurrent use.
type FakeBackend struct {
	name string

	mu      sync.Mutex
	secrets map[Name]SecretValue
	failOn  map[Name]error
	failAll error
	delay   time.Duration

	fetchCalls  map[Name]int
	healthCalls int
	healthErr   error
	listErr     error
}

// NewFakeBackend creates an empty fake backend with the given instance name.
func NewFakeBackend(name string) *FakeBackend {
	return &FakeBackend{
		name:       name,
		secrets:    make(map[Name]SecretValue),
		failOn:     make(map[Name]error),
		fetchCalls: make(map[Name]int),
	}
}

// WithSecret stores a value under name. A zero Provider field is filled with
// the backend's own name.
func (f *FakeBackend) WithSecret(name Name, v SecretValue) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.Provider == "" {
		v.Provider = f.name
	}
	if v.FetchedAt.IsZero() {
		v.FetchedAt = time.Now()
	}
	f.secrets[name] = v
	return f
}

// WithValueTTL stores a plain value with the given TTL relative to fetch time.
func (f *FakeBackend) WithValueTTL(name Name, value string, ttl time.Duration) *FakeBackend {
	now := time.Now()
	v := SecretValue{Value: value, Provider: f.name, FetchedAt: now}
	if ttl > 0 {
		v.ExpiresAt = now.Add(ttl)
	}
	return f.WithSecret(name, v)
}

// WithError makes Fetch fail for one name with err.
func (f *FakeBackend) WithError(name Name, err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[name] = err
	return f
}

// FailWith makes every Fetch fail with err until cleared with FailWith(nil).
func (f *FakeBackend) FailWith(err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = err
	return f
}

// WithDelay makes Fetch sleep before answering, to simulate a slow store.
func (f *FakeBackend) WithDelay(d time.Duration) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// WithHealthError makes HealthCheck fail.
func (f *FakeBackend) WithHealthError(err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
	return f
}

// FetchCount returns how many times Fetch was called for name.
func (f *FakeBackend) FetchCount(name Name) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[name]
}

// TotalFetches returns the total Fetch calls across all names.
func (f *FakeBackend) TotalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.fetchCalls {
		total += n
	}
	return total
}

func (f *FakeBackend) Name() string { return f.name }

func (f *FakeBackend) Fetch(ctx context.Context, name Name) (SecretValue, error) {
	f.mu.Lock()
	f.fetchCalls[name]++
	delay := f.delay
	failAll := f.failAll
	failErr, hasFailErr := f.failOn[name]
	v, ok := f.secrets[name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return SecretValue{}, UnavailableError{Provider: f.name, Err: ctx.Err()}
		}
	}
	if err := ctx.Err(); err != nil {
		return SecretValue{}, UnavailableError{Provider: f.name, Err: err}
	}
	if failAll != nil {
		return SecretValue{}, failAll
	}
	if hasFailErr {
		return SecretValue{}, failErr
	}
	if !ok {
		return SecretValue{}, NotFoundError{Provider: f.name, Name: name}
	}
	return v, nil
}

func (f *FakeBackend) List(ctx context.Context) ([]Name, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]Name, 0, len(f.secrets))
	for n := range f.secrets {
		names = append(names, n)
	}
	return names, nil
}

func (f *FakeBackend) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	return f.healthErr
}

// ContractTest runs the behavioral checks every Backend implementation must
// satisfy. Concrete backend tests construct their instance (usually around a
// mocked client) and hand it here along with a name known to exist and one
// known to be absent.
type ContractTest struct {
	Backend     Backend
	KnownName   Name
	MissingName Name

	// SkipList skips the List check for backends that support enumeration
	// only against live services.
	SkipList bool
}

// Run executes the contract suite as subtests.
func (c ContractTest) Run(t *testing.T) {
	t.Run("Name", func(t *testing.T) {
		if c.Backend.Name() == "" {
			t.Fatal("Backend.Name() returned empty string")
		}
	})

	t.Run("FetchKnown", func(t *testing.T) {
		v, err := c.Backend.Fetch(context.Background(), c.KnownName)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", c.KnownName, err)
		}
		if v.Value == "" {
			t.Errorf("Fetch(%s) returned empty value", c.KnownName)
		}
		if v.Provider != c.Backend.Name() {
			t.Errorf("Fetch(%s) provider = %q, want %q", c.KnownName, v.Provider, c.Backend.Name())
		}
	})

	t.Run("FetchMissing", func(t *testing.T) {
		_, err := c.Backend.Fetch(context.Background(), c.MissingName)
		if !IsNotFound(err) {
			t.Errorf("Fetch(%s) error = %v, want NotFoundError", c.MissingName, err)
		}
	})

	t.Run("FetchCancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Backend.Fetch(ctx, c.KnownName)
		if err == nil {
			t.Error("Fetch with cancelled context succeeded, want error")
		}
	})

	if !c.SkipList {
		t.Run("List", func(t *testing.T) {
			names, err := c.Backend.List(context.Background())
			if err == ErrListUnsupported {
				t.Skip("backend does not support listing")
			}
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			found := false
			for _, n := range names {
				if n == c.KnownName {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("List did not include %s", c.KnownName)
			}
		})
	}
}
