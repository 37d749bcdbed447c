package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sawpanic/sentirun/internal/social"
)

// Config holds redis connection settings
type Config struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	URL      string `yaml:"url" env:"REDIS_URL"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether an address or URL is configured
func (c Config) Enabled() bool {
	return c.Addr != "" || c.URL != ""
}

// NewClient opens a redis client from config. URL takes precedence.
func NewClient(config Config) (*redis.Client, error) {
	if config.URL != "" {
		opts, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	if config.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}), nil
}

// ResolutionCache stores instrument resolutions in redis with a fixed TTL
type ResolutionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResolutionCache creates a cache. An empty prefix defaults to
// "sentirun:resolve:".
func NewResolutionCache(client *redis.Client, prefix string, ttl time.Duration) *ResolutionCache {
	if prefix == "" {
		prefix = "sentirun:resolve:"
	}
	return &ResolutionCache{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the redis key for a normalized query
func (c *ResolutionCache) Key(query string) string {
	return c.prefix + query
}

// Get returns the cached instrument, relying on redis expiry for the TTL
func (c *ResolutionCache) Get(ctx context.Context, query string) (social.Instrument, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(query)).Result()
	if errors.Is(err, redis.Nil) {
		return social.Instrument{}, false, nil
	}
	if err != nil {
		return social.Instrument{}, false, fmt.Errorf("redis get: %w", err)
	}

	var inst social.Instrument
	if err := json.Unmarshal([]byte(raw), &inst); err != nil {
		return social.Instrument{}, false, fmt.Errorf("decode cached instrument: %w", err)
	}
	return inst, true, nil
}

// Set stores the instrument with the cache TTL
func (c *ResolutionCache) Set(ctx context.Context, query string, inst social.Instrument) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.Key(query), string(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (c *ResolutionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
