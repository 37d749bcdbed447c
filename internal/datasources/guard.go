package datasources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when a guard rejects a call because its breaker is open
var ErrCircuitOpen = errors.New("circuit open")

// GuardConfig configures the rate limit and circuit breaker for one upstream
type GuardConfig struct {
	Name                string        `yaml:"name"`
	RequestsPerSecond   float64       `yaml:"rps"`
	Burst               int           `yaml:"burst"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	Interval            time.Duration `yaml:"interval"`
}

// DefaultGuardConfig returns conservative defaults for a named upstream
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		RequestsPerSecond:   1,
		Burst:               2,
		ConsecutiveFailures: 5,
		OpenTimeout:         60 * time.Second,
		Interval:            5 * time.Minute,
	}
}

// Guard paces calls to one upstream and trips after repeated failures
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// GuardStatus reports the breaker state of a guard
type GuardStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// NewGuard creates a guard from config, filling zero values with defaults
func NewGuard(config GuardConfig) *Guard {
	defaults := DefaultGuardConfig(config.Name)
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = defaults.ConsecutiveFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}

	threshold := config.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:     config.Name,
		Interval: config.Interval,
		Timeout:  config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("guard", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Guard{
		name:    config.Name,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the guarded upstream name
func (g *Guard) Name() string {
	return g.name
}

// Do waits for a rate limit token and runs fn through the circuit breaker.
// Context cancellation while waiting is returned without touching the breaker.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", g.name, err)
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
	}
	return err
}

// Status returns the current breaker counters
func (g *Guard) Status() GuardStatus {
	counts := g.breaker.Counts()
	return GuardStatus{
		Name:                g.name,
		State:               g.breaker.State().String(),
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// GuardRegistry hands out one guard per upstream name
type GuardRegistry struct {
	guards  map[string]*Guard
	configs map[string]GuardConfig
	mu      sync.Mutex
}

// NewGuardRegistry creates a registry with optional per-upstream configs
func NewGuardRegistry(configs ...GuardConfig) *GuardRegistry {
	r := &GuardRegistry{
		guards:  make(map[string]*Guard),
		configs: make(map[string]GuardConfig),
	}
	for _, c := range configs {
		r.configs[c.Name] = c
	}
	return r
}

// Get returns the guard for name, creating it on first use
func (r *GuardRegistry) Get(name string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guards[name]; ok {
		return g
	}

	config, ok := r.configs[name]
	if !ok {
		config = DefaultGuardConfig(name)
	}
	config.Name = name

	g := NewGuard(config)
	r.guards[name] = g
	return g
}

// Status returns the status of every guard created so far
func (r *GuardRegistry) Status() map[string]GuardStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]GuardStatus, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.Status()
	}
	return out
}
