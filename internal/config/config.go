package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/cache"
	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/infrastructure/db"
	"github.com/sawpanic/sentirun/internal/infrastructure/httpclient"
	"github.com/sawpanic/sentirun/internal/ingest"
	"github.com/sawpanic/sentirun/internal/interfaces/alerts"
	api "github.com/sawpanic/sentirun/internal/interfaces/http"
	slog "github.com/sawpanic/sentirun/internal/log"
	"github.com/sawpanic/sentirun/internal/market"
	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/scanner"
	"github.com/sawpanic/sentirun/internal/social"
	"github.com/sawpanic/sentirun/internal/stream"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the complete sentirun configuration
type Config struct {
	Log       LogConfig                 `yaml:"log"`
	Store     StoreConfig               `yaml:"store"`
	Redis     cache.Config              `yaml:"redis"`
	Sources   social.CollectorsConfig   `yaml:"sources"`
	Guards    []datasources.GuardConfig `yaml:"guards"`
	HTTP      httpclient.Config         `yaml:"http"`
	Aliases   map[string]string         `yaml:"aliases"` // company name -> symbol
	Sentiment nlp.Config                `yaml:"sentiment"`
	Ingest    ingest.Config             `yaml:"ingest"`
	Scanner   ScannerConfig             `yaml:"scanner"`
	Backtest  BacktestConfig            `yaml:"backtest"`
	Prices    market.EODHDConfig        `yaml:"prices"`
	Kafka     stream.KafkaConfig        `yaml:"kafka"`
	Alerts    AlertsConfig              `yaml:"alerts"`
	Server    api.ServerConfig          `yaml:"server"`
}

// LogConfig selects the zerolog level and encoding
type LogConfig struct {
	Level  string      `yaml:"level" env:"SENTIRUN_LOG_LEVEL"`
	Format slog.Format `yaml:"format" env:"SENTIRUN_LOG_FORMAT"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend    string    `yaml:"backend" env:"SENTIRUN_STORE"`
	SQLitePath string    `yaml:"sqlite_path" env:"SENTIRUN_SQLITE_PATH"`
	Postgres   db.Config `yaml:"postgres"`
}

// ScannerConfig adds the default universe and ranking limits to the scanner tuning
type ScannerConfig struct {
	scanner.Config `yaml:",inline"`
	Universe       []string `yaml:"universe" env:"SENTIRUN_UNIVERSE"`
	MinConviction  float64  `yaml:"min_conviction"`
	MaxResults     int      `yaml:"max_results"`
}

// BacktestConfig holds request defaults for the backtest command
type BacktestConfig struct {
	Strategy     string        `yaml:"strategy"`
	HoldDays     int           `yaml:"hold_days"`
	PositionSize int           `yaml:"position_size"`
	Threshold    float64       `yaml:"threshold"`
	Lookback     time.Duration `yaml:"lookback"`
}

// AlertsConfig configures the Discord webhook and the scheduled scan
type AlertsConfig struct {
	Discord alerts.DiscordConfig `yaml:"discord"`
	// ScanInterval is how often serve runs the notification scan; zero disables it
	ScanInterval time.Duration `yaml:"scan_interval" env:"SENTIRUN_SCAN_INTERVAL"`
}

// Default returns a configuration that runs entirely in memory
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: slog.FormatAuto},
		Store:     StoreConfig{Backend: BackendMemory, SQLitePath: "sentirun.db", Postgres: db.DefaultConfig()},
		Redis:     cache.Config{Prefix: "sentirun:resolve:"},
		Sources:   social.DefaultCollectorsConfig(),
		HTTP:      httpclient.DefaultConfig(),
		Sentiment: nlp.DefaultConfig(),
		Ingest:    ingest.DefaultConfig(),
		Scanner: ScannerConfig{
			Config:        scanner.DefaultConfig(),
			Universe:      append([]string(nil), scanner.DefaultUniverse...),
			MinConviction: scanner.DefaultMinConviction,
			MaxResults:    20,
		},
		Backtest: BacktestConfig{
			Strategy:     backtest.StrategyMomentum,
			HoldDays:     backtest.DefaultHoldDays,
			PositionSize: backtest.DefaultPositionSize,
			Threshold:    backtest.DefaultThreshold,
			Lookback:     backtest.DefaultLookback,
		},
		Prices: market.DefaultEODHDConfig(),
		Kafka:  stream.DefaultKafkaConfig(),
		Alerts: AlertsConfig{ScanInterval: 24 * time.Hour},
		Server: api.DefaultServerConfig(),
	}
}

// Load reads .env (when present), then the YAML file at path (when non-empty),
// then applies environment overrides and validates the result
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration is consistent
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store: postgres backend requires a dsn or DATABASE_URL")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store: sqlite backend requires sqlite_path")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}

	if _, err := nlp.NewScorer(c.Sentiment, nil, nil); err != nil {
		return fmt.Errorf("sentiment: %w", err)
	}

	if c.Ingest.MaxConcurrentSources < 0 {
		return fmt.Errorf("ingest: max_concurrent_sources cannot be negative, got %d", c.Ingest.MaxConcurrentSources)
	}
	if c.Scanner.MaxLoss < 0 {
		return fmt.Errorf("scanner: max_loss cannot be negative, got %f", c.Scanner.MaxLoss)
	}
	if c.Scanner.Workers < 0 {
		return fmt.Errorf("scanner: workers cannot be negative, got %d", c.Scanner.Workers)
	}
	if c.Scanner.MaxResults < 0 {
		return fmt.Errorf("scanner: max_results cannot be negative, got %d", c.Scanner.MaxResults)
	}
	if _, err := ingest.ParseWindow(c.Scanner.SentimentWindow); c.Scanner.SentimentWindow != "" && err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	if c.Backtest.Threshold < 0 || c.Backtest.Threshold > 1 {
		return fmt.Errorf("backtest: threshold must be between 0 and 1, got %f", c.Backtest.Threshold)
	}
	if c.Backtest.HoldDays < 0 || c.Backtest.PositionSize < 0 {
		return fmt.Errorf("backtest: hold_days and position_size cannot be negative")
	}

	for _, g := range c.Guards {
		if g.Name == "" {
			return fmt.Errorf("guards: every guard needs a name")
		}
		if g.RequestsPerSecond < 0 || g.Burst < 0 {
			return fmt.Errorf("guard %s: rps and burst cannot be negative", g.Name)
		}
	}

	if c.HTTP.MaxInFlight < 0 || c.HTTP.Retries < 0 {
		return fmt.Errorf("http: max_in_flight and retries cannot be negative")
	}
	if c.Kafka.Topic == "" && len(c.Kafka.Brokers) > 0 {
		return fmt.Errorf("kafka: brokers set without a topic")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port out of range: %d", c.Server.Port)
	}
	return nil
}

// GuardRegistry builds per-upstream guards from the configured overrides
func (c *Config) GuardRegistry() *datasources.GuardRegistry {
	return datasources.NewGuardRegistry(c.Guards...)
}

// BacktestRequest applies the configured defaults to req's zero fields
func (c *Config) BacktestRequest(req backtest.Request, now time.Time) backtest.Request {
	if req.Strategy == "" {
		req.Strategy = c.Backtest.Strategy
	}
	if req.HoldDays == 0 {
		req.HoldDays = c.Backtest.HoldDays
	}
	if req.PositionSize == 0 {
		req.PositionSize = c.Backtest.PositionSize
	}
	if req.Threshold == nil {
		req.Threshold = backtest.Float(c.Backtest.Threshold)
	}
	if req.End.IsZero() {
		req.End = now
	}
	if req.Start.IsZero() && c.Backtest.Lookback > 0 {
		req.Start = req.End.Add(-c.Backtest.Lookback)
	}
	return req
}
