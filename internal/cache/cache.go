// Package cache is a short-TTL read-through cache in front of the pool and
// market state. The TTL is a latency/consistency trade-off only; correctness
// comes from version checking: an entry whose version disagrees with the
// backing store at read time is recomputed even if its TTL has not expired.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"token-arena/internal/observability"
)

// Well-known resource keys.
const (
	KeyPool   = "pool"
	KeyMarket = "market"
	KeyStatus = "simulation-status"
)

// Loader recomputes a resource from its backing component, returning the
// value together with the backing store version it was computed at.
type Loader func(ctx context.Context) (value interface{}, version uint64, err error)

// VersionFunc cheaply reads the backing store's current version.
type VersionFunc func() uint64

type entry struct {
	value     interface{}
	version   uint64
	expiresAt time.Time
}

type resource struct {
	load    Loader
	version VersionFunc
}

// Cache is a keyed read-through cache. Loads happen under the lock, so
// concurrent readers of a stale key trigger a single recomputation.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	resources map[string]resource
	entries   map[string]entry

	hits   uint64
	misses uint64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the clock (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given TTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:       ttl,
		now:       time.Now,
		resources: make(map[string]resource),
		entries:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register wires a key to its backing component. version may be nil for
// resources that only rely on TTL and explicit invalidation.
func (c *Cache) Register(key string, load Loader, version VersionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[key] = resource{load: load, version: version}
}

// Get returns the cached value when it is unexpired AND its version matches
// the backing store; otherwise it recomputes, stores with a fresh TTL, and
// returns the fresh value. A version mismatch overrides an unexpired TTL.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.resources[key]
	if !ok {
		return nil, fmt.Errorf("cache: unregistered key %q", key)
	}

	now := c.now()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		if res.version == nil || res.version() == e.version {
			c.hits++
			observability.RecordCacheLookup(true)
			return e.value, nil
		}
	}
	c.misses++
	observability.RecordCacheLookup(false)

	value, version, err := res.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: reload %q: %w", key, err)
	}
	c.entries[key] = entry{value: value, version: version, expiresAt: now.Add(c.ttl)}
	return value, nil
}

// Invalidate forces recomputation on the next read of key. Called by
// components that mutate the backing store (pool commit, phase transition).
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Counters reports hit/miss totals since creation.
func (c *Cache) Counters() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
