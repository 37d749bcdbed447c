package resolver

import (
	"context"
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/social"
)

// Cache stores resolutions keyed by normalized query. Implementations must
// treat entries older than CacheTTL as absent.
type Cache interface {
	Get(ctx context.Context, query string) (social.Instrument, bool, error)
	Set(ctx context.Context, query string, inst social.Instrument) error
}

// MemoryCache keeps resolutions in process
type MemoryCache struct {
	entries *datasources.TTLCache[social.Instrument]
}

// NewMemoryCache creates an in-process cache with the standard TTL
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: datasources.NewTTLCache[social.Instrument](CacheTTL)}
}

// WithClock replaces the time source, mainly for tests
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.entries.WithClock(now)
	return c
}

// Get implements Cache
func (c *MemoryCache) Get(ctx context.Context, query string) (social.Instrument, bool, error) {
	inst, ok := c.entries.Get(query)
	return inst, ok, nil
}

// Set implements Cache
func (c *MemoryCache) Set(ctx context.Context, query string, inst social.Instrument) error {
	c.entries.Set(query, inst)
	return nil
}

// ResolutionStore is the persistence side of the resolution cache
type ResolutionStore interface {
	CacheResolution(ctx context.Context, query string, inst social.Instrument) error
	GetCachedResolution(ctx context.Context, query string) (*social.Instrument, error)
}

// StoreCache adapts a persistence store to Cache
type StoreCache struct {
	store ResolutionStore
}

// NewStoreCache wraps store
func NewStoreCache(store ResolutionStore) *StoreCache {
	return &StoreCache{store: store}
}

// Get implements Cache
func (c *StoreCache) Get(ctx context.Context, query string) (social.Instrument, bool, error) {
	inst, err := c.store.GetCachedResolution(ctx, query)
	if err != nil || inst == nil {
		return social.Instrument{}, false, err
	}
	return *inst, true, nil
}

// Set implements Cache
func (c *StoreCache) Set(ctx context.Context, query string, inst social.Instrument) error {
	return c.store.CacheResolution(ctx, query, inst)
}

// Chain reads from caches in order and writes to all of them. A hit in a later
// cache is copied into the earlier ones.
type Chain []Cache

// Get implements Cache. Errors from individual tiers are skipped unless every
// tier fails.
func (c Chain) Get(ctx context.Context, query string) (social.Instrument, bool, error) {
	var lastErr error
	failed := 0
	for i, cache := range c {
		inst, ok, err := cache.Get(ctx, query)
		if err != nil {
			lastErr = err
			failed++
			continue
		}
		if ok {
			for _, earlier := range c[:i] {
				_ = earlier.Set(ctx, query, inst)
			}
			return inst, true, nil
		}
	}
	if failed == len(c) && failed > 0 {
		return social.Instrument{}, false, lastErr
	}
	return social.Instrument{}, false, nil
}

// Set implements Cache and returns the first error encountered
func (c Chain) Set(ctx context.Context, query string, inst social.Instrument) error {
	var firstErr error
	for _, cache := range c {
		if err := cache.Set(ctx, query, inst); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
