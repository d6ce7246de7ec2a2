package resolve_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/internal/registry"
	"github.com/systmms/credstore/internal/resolve"
	"github.com/systmms/credstore/pkg/provider"
)

func TestConcurrentResolveSingleFetch(t *testing.T) {
	// 50 callers hit a cold cache at once. The delay holds the fetch open
	// long enough for every caller to join the same flight; the backend
	// must see exactly one Fetch.
	backend := provider.NewFakeBackend("vault").
		WithValueTTL(dbPassword, "pw123", time.Minute).
		WithDelay(100 * time.Millisecond)
	f := newFixture(t, registry.Options{}, backend)

	const callers = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values []string
		errs   []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := f.resolver.Resolve(context.Background(), dbPassword, resolve.Options{})
			mu.Lock()
			values = append(values, v.Value)
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, v := range values {
		assert.Equal(t, "pw123", v)
	}
	assert.Equal(t, 1, backend.FetchCount(dbPassword), "all callers must share one backend fetch")
}

func TestWaiterTimeoutDoesNotKillSharedFetch(t *testing.T) {
	backend := provider.NewFakeBackend("slow").
		WithValueTTL(dbPassword, "pw123", time.Minute).
		WithDelay(150 * time.Millisecond)
	f := newFixture(t, registry.Options{}, backend)

	// An impatient caller gives up early while a patient one waits.
	var wg sync.WaitGroup
	wg.Add(1)
	var impatientErr error
	go func() {
		defer wg.Done()
		_, impatientErr = f.resolver.Resolve(context.Background(), dbPassword, resolve.Options{MaxWait: 20 * time.Millisecond})
	}()

	v, err := f.resolver.Resolve(context.Background(), dbPassword, resolve.Options{MaxWait: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "pw123", v.Value)

	wg.Wait()
	var timeout resolve.TimeoutError
	assert.ErrorAs(t, impatientErr, &timeout)
	assert.Equal(t, 1, backend.FetchCount(dbPassword))
}

func TestConcurrentDistinctNamesFetchIndependently(t *testing.T) {
	a := provider.Name{Namespace: "db", Key: "user"}
	b := provider.Name{Namespace: "db", Key: "pass"}
	backend := provider.NewFakeBackend("vault").
		WithValueTTL(a, "alice", time.Minute).
		WithValueTTL(b, "hunter2", time.Minute).
		WithDelay(30 * time.Millisecond)
	f := newFixture(t, registry.Options{}, backend)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, name := range []provider.Name{a, b} {
			wg.Add(1)
			go func(n provider.Name) {
				defer wg.Done()
				_, err := f.resolver.Resolve(context.Background(), n, resolve.Options{})
				assert.NoError(t, err)
			}(name)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, backend.FetchCount(a))
	assert.Equal(t, 1, backend.FetchCount(b))
}
