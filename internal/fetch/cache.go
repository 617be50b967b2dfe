package fetch

import (
	"sync"
	"time"
)

// Clock abstracts time for the cache so tests can control expiry
// deterministically.
type Clock func() time.Time

// TTLCache is a read-through value cache keyed by source+query. Entries are
// immutable value objects overwritten on refresh; readers may observe a
// stale-but-consistent snapshot until the TTL lapses.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     Clock
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
}

// NewTTLCache creates a cache with the given TTL. A nil clock defaults to
// time.Now.
func NewTTLCache(ttl time.Duration, now Clock) *TTLCache {
	if now == nil {
		now = time.Now
	}
	return &TTLCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key if it is still fresh.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value under key, resetting its TTL.
func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}
