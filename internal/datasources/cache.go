package datasources

import (
	"sync"
	"time"
)

// CacheEntry represents a cached value and when it was stored
type CacheEntry[V any] struct {
	Value    V
	StoredAt time.Time
}

// CacheStats summarizes cache usage
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int64 `json:"expired"`
}

// TTLCache is an in-memory cache where every entry shares one TTL. Entries
// older than the TTL are treated as absent.
type TTLCache[V any] struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]CacheEntry[V]
	stats   CacheStats
	mu      sync.RWMutex
}

// NewTTLCache creates a cache whose entries expire after ttl
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]CacheEntry[V]),
	}
}

// WithClock replaces the time source, mainly for tests
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// TTL returns the configured time-to-live
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}

// Set stores value under key, stamped with the current time
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetAt(key, value, c.clock())
}

// SetAt stores value under key with an explicit timestamp
func (c *TTLCache[V]) SetAt(key string, value V, at time.Time) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry[V]{Value: value, StoredAt: at}
}

// Get returns the value for key if present and not expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	if c.now().Sub(entry.StoredAt) > c.ttl {
		delete(c.entries, key)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}

	c.stats.Hits++
	return entry.Value, true
}

// Delete removes key from the cache
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry[V])
}

// CleanExpired removes all expired entries and returns how many were removed
func (c *TTLCache[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.StoredAt) > c.ttl {
			delete(c.entries, key)
			cleaned++
		}
	}
	c.stats.Expired += int64(cleaned)

	return cleaned
}

// Stats returns a snapshot of cache statistics
func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}

func (c *TTLCache[V]) clock() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now()
}
