package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/resolver"
	"github.com/sawpanic/sentirun/internal/social"
)

var _ resolver.Cache = (*ResolutionCache)(nil)

func TestResolutionCache_SetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResolutionCache(db, "", resolver.CacheTTL)
	ctx := context.Background()

	payload := `{"symbol":"AAPL","display_name":"APPLE"}`
	mock.ExpectSet("sentirun:resolve:APPLE", payload, 7*24*time.Hour).SetVal("OK")
	mock.ExpectGet("sentirun:resolve:APPLE").SetVal(payload)

	require.NoError(t, cache.Set(ctx, "APPLE", social.Instrument{Symbol: "AAPL", DisplayName: "APPLE"}))

	inst, ok, err := cache.Get(ctx, "APPLE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "AAPL", inst.Symbol)
	assert.Equal(t, "APPLE", inst.DisplayName)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionCache_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResolutionCache(db, "test:", time.Hour)

	mock.ExpectGet("test:TESLA").RedisNil()

	_, ok, err := cache.Get(context.Background(), "TESLA")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolutionCache_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResolutionCache(db, "", time.Hour)

	mock.ExpectGet("sentirun:resolve:NVIDIA").SetErr(errors.New("connection refused"))
	mock.ExpectGet("sentirun:resolve:BROKEN").SetVal("not json")

	_, _, err := cache.Get(context.Background(), "NVIDIA")
	assert.Error(t, err)

	_, ok, err := cache.Get(context.Background(), "BROKEN")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestConfig(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Addr: "localhost:6379"}.Enabled())

	client, err := NewClient(Config{URL: "redis://localhost:6379/2"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)

	_, err = NewClient(Config{URL: "://bad"})
	assert.Error(t, err)

	_, err = NewClient(Config{})
	assert.Error(t, err)
}
