// Package cache provides TTL memoization for read-mostly catalog lookups.
// Carts are never cached here: cart state is live, mutation-driven, and owned
// by the cart store.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is a cached value with its expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache memoizes values by key with a per-entry TTL. Concurrent fills for
// the same key are collapsed into one upstream call.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	group      singleflight.Group
	now        func() time.Time // overridable in tests
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// NoStore is the TTL meaning "do not cache this value at all". Distinct
// from 0, which means "use the cache default".
const NoStore = time.Duration(-1)

// Fill is a function producing a value and its TTL. Returning ttl == 0 means
// "use the cache default"; NoStore (or any negative ttl) means the value is
// handed to the caller but never stored.
type Fill func() (value any, ttl time.Duration, err error)

// GetOrFill returns a live cached value for key, or runs fill to produce one.
// Errors are not cached; the next call re-runs the fill. The fill's ttl can
// only shorten the default, never extend it.
func (c *Cache) GetOrFill(key string, fill Fill) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another waiter may have populated the entry while we queued.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		value, ttl, err := fill()
		if err != nil {
			return nil, err
		}
		if ttl < 0 {
			return value, nil
		}
		if ttl == 0 || ttl > c.defaultTTL {
			ttl = c.defaultTTL
		}
		c.set(key, value, ttl)
		return value, nil
	})
	return v, err
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry. Fired when a new admin token is issued, since
// cached reads were populated under the old token context.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of entries, live or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
