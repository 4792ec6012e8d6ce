// Package cache implements the generic, single-flight-coalescing TTL cache
// that holds canonicalized Snapshots for the HTTP handlers and the Scheduler,
// generalized from the teacher's per-service
// single-entry and grid caches (internal/airquality/service.go,
// internal/weather/service.go) into one reusable type.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is one cached value plus its insertion time.
type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is a generic TTL cache with single-flight request coalescing: at
// most one compute runs per key at a time, and concurrent callers for the
// same missing key share its result.
type Cache[K comparable, V any] struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[K]entry[V]

	group singleflight.Group
}

// New constructs a Cache with the given TTL.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
	}
}

// Get returns a value only if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	var zero V
	if !ok || c.expired(e) {
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites a value under key, resetting its TTL clock.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, insertedAt: time.Now()}
}

// GetOrCompute returns the cached value for key if present and fresh;
// otherwise it invokes compute exactly once per key even under concurrent
// callers (single-flight), caches the result on success, and returns it to
// all waiters. Errors are not cached, except when the caller explicitly
// wants the mock-fallback marker cached as a valid value — callers do that
// by returning it as a normal (V, nil) result, not as an error.
func (c *Cache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	shared, err, _ := c.group.Do(keyString(key), func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})

	if err != nil {
		var zero V
		return zero, err
	}
	return shared.(V), nil
}

// Sweep removes every expired entry. Safe to call periodically or lazily.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently stored, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) expired(e entry[V]) bool {
	return time.Since(e.insertedAt) > c.ttl
}

// keyString renders a comparable key to a singleflight group key.
func keyString[K comparable](key K) string {
	return fmt.Sprintf("%v", key)
}
