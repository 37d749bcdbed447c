package datasources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetGet(t *testing.T) {
	cache := NewTTLCache[string](time.Hour)

	cache.Set("apple", "AAPL")
	v, ok := cache.Get("apple")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", v)

	_, ok = cache.Get("tesla")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTTLCache_ExpiredEntriesAreAbsent(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewTTLCache[int](7 * 24 * time.Hour).WithClock(func() time.Time { return now })

	cache.SetAt("fresh", 1, now.Add(-6*24*time.Hour))
	cache.SetAt("stale", 2, now.Add(-8*24*time.Hour))

	v, ok := cache.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = cache.Get("stale")
	assert.False(t, ok, "entries older than the TTL must be treated as absent")
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestTTLCache_CleanExpired(t *testing.T) {
	now := time.Now()
	cache := NewTTLCache[int](time.Minute).WithClock(func() time.Time { return now })

	cache.SetAt("a", 1, now.Add(-2*time.Minute))
	cache.SetAt("b", 2, now.Add(-3*time.Minute))
	cache.SetAt("c", 3, now)

	assert.Equal(t, 2, cache.CleanExpired())
	assert.Equal(t, 1, cache.Stats().Entries)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestTTLCache_ZeroTTLDisablesCaching(t *testing.T) {
	cache := NewTTLCache[string](0)
	cache.Set("k", "v")

	_, ok := cache.Get("k")
	assert.False(t, ok)
}
