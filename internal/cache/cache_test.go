package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/pkg/provider"
)

var testName = provider.Name{Namespace: "db", Key: "password"}

// fixedClock is a controllable clock for freshness tests.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(clock *fixedClock, opts Options) *Cache {
	opts.Now = clock.Now
	return New(opts)
}

func valueWithTTL(clock *fixedClock, val string, ttl time.Duration) provider.SecretValue {
	v := provider.SecretValue{
		Value:     val,
		Provider:  "fake",
		FetchedAt: clock.Now(),
	}
	if ttl > 0 {
		v.ExpiresAt = clock.Now().Add(ttl)
	}
	return v
}

func TestGetMiss(t *testing.T) {
	c := New(Options{})
	_, ok := c.Get(testName)
	assert.False(t, ok)
}

func TestFreshUntilLeadTime(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{LeadFraction: 0.1})

	// TTL 100s, lead 10s: fresh until t+90s.
	c.Put(testName, valueWithTTL(clock, "pw123", 100*time.Second))

	e, ok := c.Get(testName)
	require.True(t, ok)
	assert.Equal(t, StateFresh, e.State)
	assert.Equal(t, "pw123", e.Value.Value)

	clock.Advance(89 * time.Second)
	e, _ = c.Get(testName)
	assert.Equal(t, StateFresh, e.State)

	clock.Advance(1 * time.Second)
	e, _ = c.Get(testName)
	assert.Equal(t, StateStale, e.State, "entry turns stale at expiry minus lead time")
	assert.True(t, e.Servable())
}

func TestNoExpiryIsFreshIndefinitely(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	c.Put(testName, valueWithTTL(clock, "static", 0))

	clock.Advance(1000 * time.Hour)
	e, ok := c.Get(testName)
	require.True(t, ok)
	assert.Equal(t, StateFresh, e.State)

	c.Invalidate(testName)
	_, ok = c.Get(testName)
	assert.False(t, ok)
}

func TestDefaultTTLApplied(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{LeadFraction: 0.1, DefaultTTL: time.Minute})

	c.Put(testName, valueWithTTL(clock, "v", 0))

	e, _ := c.Get(testName)
	assert.Equal(t, StateFresh, e.State)
	assert.Equal(t, clock.Now().Add(time.Minute), e.Value.ExpiresAt)

	clock.Advance(55 * time.Second)
	e, _ = c.Get(testName)
	assert.Equal(t, StateStale, e.State)
}

func TestPutReplacesAndResetsFailures(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	c.Put(testName, valueWithTTL(clock, "old", time.Second))
	clock.Advance(2 * time.Second)
	c.RecordRefreshFailure(testName)
	c.RecordRefreshFailure(testName)
	c.MarkInvalid(testName)

	c.Put(testName, valueWithTTL(clock, "new", time.Minute))
	e, ok := c.Get(testName)
	require.True(t, ok)
	assert.Equal(t, StateFresh, e.State)
	assert.Equal(t, "new", e.Value.Value)
	assert.Zero(t, e.RefreshFailures)
}

func TestRefreshingState(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	assert.False(t, c.MarkRefreshing(testName), "cannot refresh a missing entry")

	c.Put(testName, valueWithTTL(clock, "v", time.Minute))
	assert.True(t, c.MarkRefreshing(testName))

	e, _ := c.Get(testName)
	assert.Equal(t, StateRefreshing, e.State)
	assert.True(t, e.Servable(), "old value stays servable during refresh")

	// A failed refresh returns the entry to stale/fresh, counts the failure.
	n := c.RecordRefreshFailure(testName)
	assert.Equal(t, 1, n)
	e, _ = c.Get(testName)
	assert.Equal(t, StateFresh, e.State)
	assert.Equal(t, 1, e.RefreshFailures)
}

func TestMarkInvalid(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	c.Put(testName, valueWithTTL(clock, "v", time.Minute))
	c.MarkInvalid(testName)

	e, ok := c.Get(testName)
	require.True(t, ok)
	assert.Equal(t, StateInvalid, e.State)
	assert.False(t, e.Servable())

	assert.False(t, c.MarkRefreshing(testName), "invalid entries are not refreshed in place")
}

func TestStaleNames(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{LeadFraction: 0.1})

	staleName := provider.Name{Namespace: "a", Key: "stale"}
	freshName := provider.Name{Namespace: "a", Key: "fresh"}
	invalidName := provider.Name{Namespace: "a", Key: "invalid"}
	refreshingName := provider.Name{Namespace: "a", Key: "refreshing"}
	foreverName := provider.Name{Namespace: "a", Key: "forever"}

	c.Put(staleName, valueWithTTL(clock, "v", 10*time.Second))
	c.Put(invalidName, valueWithTTL(clock, "v", 10*time.Second))
	c.Put(refreshingName, valueWithTTL(clock, "v", 10*time.Second))
	c.Put(foreverName, valueWithTTL(clock, "v", 0))

	clock.Advance(30 * time.Second)
	c.Put(freshName, valueWithTTL(clock, "v", time.Hour))
	c.MarkInvalid(invalidName)
	c.MarkRefreshing(refreshingName)

	names := c.StaleNames()
	assert.ElementsMatch(t, []provider.Name{staleName}, names)
}

func TestSweepExpired(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	staleValid := provider.Name{Namespace: "a", Key: "stale-valid"}
	invalidExpired := provider.Name{Namespace: "a", Key: "invalid-expired"}
	invalidCurrent := provider.Name{Namespace: "a", Key: "invalid-current"}

	c.Put(staleValid, valueWithTTL(clock, "v", 10*time.Second))
	c.Put(invalidExpired, valueWithTTL(clock, "v", 10*time.Second))
	c.Put(invalidCurrent, valueWithTTL(clock, "v", time.Hour))
	c.MarkInvalid(invalidExpired)
	c.MarkInvalid(invalidCurrent)

	clock.Advance(20 * time.Second)
	evicted := c.SweepExpired()

	assert.Equal(t, 1, evicted)
	_, ok := c.Get(invalidExpired)
	assert.False(t, ok)
	_, ok = c.Get(staleValid)
	assert.True(t, ok, "stale-but-valid entries survive the sweep as degraded fallback")
	_, ok = c.Get(invalidCurrent)
	assert.True(t, ok, "invalid entries within validity are kept for observability")
}

func TestEntriesSnapshot(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	c := newTestCache(clock, Options{})

	c.Put(testName, valueWithTTL(clock, "v", time.Minute))
	all := c.Entries()
	require.Len(t, all, 1)
	assert.Equal(t, StateFresh, all[testName].State)
	assert.Equal(t, 1, c.Len())
}
