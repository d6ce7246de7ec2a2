// Package cache holds resolved secrets in memory, keyed by logical name,
// and owns the freshness state machine: Fresh until the refresh lead time
// before expiry, Stale but still servable after that, Refreshing while the
// rotation scheduler has a refresh in flight, Invalid once proactive
// refreshes have failed too often.
//
// The cache itself only guards its map; serialization of fetches per name is
// the resolver's job. Entries are mutated only through the resolver (on
// fetch) and the rotation scheduler (on refresh).
package cache

import (
	"sync"
	"time"

	"github.com/systmms/credstore/pkg/provider"
)

// State is the lifecycle state of a cache entry.
type State int

const (
	// StateFresh entries are served without any backend contact.
	StateFresh State = iota
	// StateStale entries are past their refresh threshold but still
	// servable, preferably after a refresh attempt.
	StateStale
	// StateRefreshing entries have a background refresh in flight; the
	// previous value remains servable.
	StateRefreshing
	// StateInvalid entries are never served; the next resolve goes
	// through a full synchronous multi-provider fetch.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time snapshot of a cached secret handed to callers.
type Entry struct {
	Value           provider.SecretValue
	State           State
	StoredAt        time.Time
	StaleAt         time.Time // zero when the entry never goes stale on its own
	RefreshFailures int
}

// Servable reports whether the entry's value may be handed to a caller at
// all, possibly in degraded mode.
func (e Entry) Servable() bool {
	return e.State != StateInvalid
}

type record struct {
	value           provider.SecretValue
	storedAt        time.Time
	staleAt         time.Time
	refreshing      bool
	invalid         bool
	refreshFailures int
}

// Options configures a Cache.
type Options struct {
	// LeadFraction is the fraction of an entry's TTL reserved as refresh
	// lead time: an entry becomes Stale at ExpiresAt - LeadFraction*TTL.
	// Must be in (0,1); 0 selects the default of 0.1.
	LeadFraction float64

	// DefaultTTL is applied to values whose backend declared no expiry.
	// Zero means such values stay Fresh until explicitly invalidated.
	DefaultTTL time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Cache is an in-memory store of resolved secrets. Safe for concurrent use.
type Cache struct {
	mu           sync.RWMutex
	entries      map[provider.Name]*record
	leadFraction float64
	defaultTTL   time.Duration
	now          func() time.Time
}

// New creates an empty cache.
func New(opts Options) *Cache {
	lead := opts.LeadFraction
	if lead <= 0 || lead >= 1 {
		lead = 0.1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries:      make(map[provider.Name]*record),
		leadFraction: lead,
		defaultTTL:   opts.DefaultTTL,
		now:          now,
	}
}

func (c *Cache) snapshot(r *record, at time.Time) Entry {
	e := Entry{
		Value:           r.value,
		StoredAt:        r.storedAt,
		StaleAt:         r.staleAt,
		RefreshFailures: r.refreshFailures,
	}
	switch {
	case r.invalid:
		e.State = StateInvalid
	case r.refreshing:
		e.State = StateRefreshing
	case r.staleAt.IsZero() || at.Before(r.staleAt):
		e.State = StateFresh
	default:
		e.State = StateStale
	}
	return e
}

// Get returns a snapshot of the entry for name, if one exists. The snapshot's
// State is computed against the current clock.
func (c *Cache) Get(name provider.Name) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return c.snapshot(r, c.now()), true
}

// Put stores a freshly fetched value, replacing any previous entry and
// clearing refresh failures and the invalid/refreshing flags. If the value
// carries no backend expiry and the cache has a default TTL, the default
// is applied from the fetch timestamp.
func (c *Cache) Put(name provider.Name, v provider.SecretValue) {
	now := c.now()
	if v.FetchedAt.IsZero() {
		v.FetchedAt = now
	}
	if v.ExpiresAt.IsZero() && c.defaultTTL > 0 {
		v.ExpiresAt = v.FetchedAt.Add(c.defaultTTL)
	}

	var staleAt time.Time
	if !v.ExpiresAt.IsZero() {
		lead := time.Duration(c.leadFraction * float64(v.ExpiresAt.Sub(v.FetchedAt)))
		staleAt = v.ExpiresAt.Add(-lead)
	}

	c.mu.Lock()
	c.entries[name] = &record{
		value:    v,
		storedAt: now,
		staleAt:  staleAt,
	}
	c.mu.Unlock()
}

// Invalidate removes the entry for name entirely.
func (c *Cache) Invalidate(name provider.Name) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// MarkInvalid flags the entry so it is never served again. The record is
// retained (rather than deleted) so RefreshFailures stays observable until
// the next successful fetch replaces it.
func (c *Cache) MarkInvalid(name provider.Name) {
	c.mu.Lock()
	if r, ok := c.entries[name]; ok {
		r.invalid = true
		r.refreshing = false
	}
	c.mu.Unlock()
}

// MarkRefreshing flags the entry as having a background refresh in flight.
// Returns false if there is no servable entry to refresh.
func (c *Cache) MarkRefreshing(name provider.Name) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[name]
	if !ok || r.invalid {
		return false
	}
	r.refreshing = true
	return true
}

// RecordRefreshFailure clears the refreshing flag, increments the entry's
// consecutive refresh failure count and returns the new count. The previous
// value stays servable as Stale.
func (c *Cache) RecordRefreshFailure(name provider.Name) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[name]
	if !ok {
		return 0
	}
	r.refreshing = false
	r.refreshFailures++
	return r.refreshFailures
}

// StaleNames returns the names whose entries are currently Stale: past the
// refresh threshold, not already being refreshed, not invalid. This is the
// rotation scheduler's work list.
func (c *Cache) StaleNames() []provider.Name {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []provider.Name
	for name, r := range c.entries {
		if r.invalid || r.refreshing || r.staleAt.IsZero() {
			continue
		}
		if !now.Before(r.staleAt) {
			names = append(names, name)
		}
	}
	return names
}

// SweepExpired evicts entries that are no longer usable in any mode: invalid
// entries whose expiry has also passed. Stale-but-valid entries are kept as
// the degraded fallback. Returns the number of evictions.
func (c *Cache) SweepExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for name, r := range c.entries {
		if !r.invalid {
			continue
		}
		if r.value.ExpiresAt.IsZero() || now.After(r.value.ExpiresAt) {
			delete(c.entries, name)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached entries, including invalid ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of every entry, for status reporting.
func (c *Cache) Entries() map[provider.Name]Entry {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[provider.Name]Entry, len(c.entries))
	for name, r := range c.entries {
		out[name] = c.snapshot(r, now)
	}
	return out
}
