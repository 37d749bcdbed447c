package persistence

import (
	"context"
	"time"

	"github.com/sawpanic/sentirun/internal/social"
)

// ResolutionTTL is how long a cached resolution is honoured
const ResolutionTTL = 7 * 24 * time.Hour

// SourceAggregate is the per-source summary of scored posts mentioning a symbol
type SourceAggregate struct {
	Source        string  `json:"source" db:"source"`
	Count         int     `json:"count" db:"count"`
	AvgPolarity   float64 `json:"avg_polarity" db:"avg_polarity"`
	AvgConfidence float64 `json:"avg_confidence" db:"avg_confidence"`
}

// Store persists cleaned posts, their sentiment, and resolver cache entries.
// Post and sentiment upserts are idempotent on (source, platform id).
type Store interface {
	// UpsertPost inserts or refreshes a post and returns its stable id.
	// A repeated key replaces content and the ingestion timestamp.
	UpsertPost(ctx context.Context, post social.CleanedPost) (int64, error)

	// UpsertSentiment stores the score for a post, replacing any previous one
	UpsertSentiment(ctx context.Context, postID int64, score social.SentimentScore) error

	// Aggregate summarizes scored posts mentioning symbol created at or after
	// since, one row per source ordered by source name
	Aggregate(ctx context.Context, symbol string, since time.Time) ([]SourceAggregate, error)

	// CacheResolution records a resolved query
	CacheResolution(ctx context.Context, query string, inst social.Instrument) error

	// GetCachedResolution returns nil when no entry younger than ResolutionTTL exists
	GetCachedResolution(ctx context.Context, query string) (*social.Instrument, error)

	Close() error
}

// HealthCheck represents store health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Backend        string         `json:"backend"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// Pinger is implemented by stores backed by a remote database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check pings store when it supports it and reports the outcome
func Check(ctx context.Context, backend string, store Store) HealthCheck {
	start := time.Now()
	check := HealthCheck{Healthy: true, Backend: backend}

	if p, ok := store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			check.Healthy = false
			check.Errors = append(check.Errors, err.Error())
		}
	}

	check.LastCheck = time.Now()
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}
