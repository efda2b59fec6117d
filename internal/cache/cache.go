// Package cache provides a short-TTL read-through cache in front of
// marketplace calls. It bounds upstream call volume within a cycle and
// collapses concurrent misses for the same key into one fetch.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a key on a cache miss.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	value     any
	fetchedAt time.Time
}

// Cache is a TTL cache with a single-flight guarantee: concurrent GetOrFetch
// calls for the same missing or expired key invoke the fetch exactly once and
// all receive its result. Expiry is time-based only; there is no explicit
// invalidation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key if it is younger than ttl,
// otherwise fetches, stores and returns a fresh value. Fetch errors are not
// cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (any, error) {
	if v, ok := c.lookup(key, ttl); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the group: another caller may have completed the
		// fetch between our lookup and joining the flight.
		if v, ok := c.lookup(key, ttl); ok {
			return v, nil
		}

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = entry{value: v, fetchedAt: c.now()}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Cache) lookup(key string, ttl time.Duration) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > ttl {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StoresKey derives the cache key for a region store query. The full query
// shape participates so differing queries never collide.
func StoresKey(lat, lon float64, radiusMeters, limit int) string {
	return fmt.Sprintf("stores:%s:%s:%d:%d",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		radiusMeters, limit)
}

// ItemsKey derives the cache key for a store items query.
func ItemsKey(storeID string) string {
	return "items:" + storeID
}
