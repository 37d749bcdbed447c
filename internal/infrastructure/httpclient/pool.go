package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultUserAgent is sent when Config.UserAgent is empty
const DefaultUserAgent = "sentirun"

// Config tunes the upstream client shared by collectors, price and sentiment providers
type Config struct {
	MaxInFlight int           `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	UserAgent   string        `yaml:"user_agent"`
}

// DefaultConfig allows 8 requests in flight and two retries
func DefaultConfig() Config {
	return Config{
		MaxInFlight: 8,
		Timeout:     15 * time.Second,
		Retries:     2,
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// Stats is a snapshot of upstream request outcomes
type Stats struct {
	Requests  int64 `json:"requests"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	LatencyMS int64 `json:"latency_ms"`
}

// Pool bounds concurrent upstream requests and retries transient failures
// with exponential backoff. It satisfies datasources.HTTPClient.
type Pool struct {
	config Config
	slots  chan struct{}
	client *http.Client

	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	latency   atomic.Int64
}

// New creates a pool, filling zero config fields with defaults
func New(config Config) *Pool {
	d := DefaultConfig()
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = d.MaxInFlight
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	config.Retries = max(config.Retries, 0)
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = d.BackoffBase
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = max(d.BackoffMax, config.BackoffBase)
	}
	return &Pool{
		config: config,
		slots:  make(chan struct{}, config.MaxInFlight),
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Do sends req, retrying transport errors and 429/502/503/504 responses.
// Requests with a body are retried only when it can be rewound. When every
// attempt is throttled the last response is returned to the caller.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	defer func() { p.latency.Add(time.Since(start).Milliseconds()) }()

	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		p.failed.Add(1)
		return nil, ctx.Err()
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	attempts := p.config.Retries + 1
	if req.Body != nil && req.GetBody == nil {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.wait(ctx, req, attempt-1); err != nil {
				p.failed.Add(1)
				return nil, err
			}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				break
			}
			continue
		}

		if retryable(resp.StatusCode) && attempt < attempts {
			resp.Body.Close()
			lastErr = fmt.Errorf("%s returned %d", req.URL.Host, resp.StatusCode)
			continue
		}

		p.succeeded.Add(1)
		return resp, nil
	}

	p.failed.Add(1)
	return nil, lastErr
}

// wait sleeps out the backoff for retry n and rewinds the request body
func (p *Pool) wait(ctx context.Context, req *http.Request, n int) error {
	p.retried.Add(1)
	delay := p.backoff(n)
	log.Debug().
		Str("host", req.URL.Host).
		Int("retry", n).
		Dur("delay", delay).
		Msg("Retrying upstream request")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff doubles from BackoffBase up to BackoffMax, plus up to 10% jitter
func (p *Pool) backoff(n int) time.Duration {
	d := min(p.config.BackoffBase<<uint(n-1), p.config.BackoffMax)
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// Stats returns the counters accumulated since New
func (p *Pool) Stats() Stats {
	s := Stats{
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
		LatencyMS: p.latency.Load(),
	}
	s.Requests = s.Succeeded + s.Failed
	return s
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
