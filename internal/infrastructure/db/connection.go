package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/persistence/postgres"
)

// Config holds database connection configuration
type Config struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Manager owns the PostgreSQL pool and the store built on it
type Manager struct {
	db     *sqlx.DB
	config Config
	store  *postgres.Store
}

// NewManager opens and pings the database described by config
func NewManager(ctx context.Context, config Config) (*Manager, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := NewManagerWithDB(db, config)
	if config.AutoMigrate {
		if err := m.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return m, nil
}

// NewManagerWithDB wraps an already opened pool
func NewManagerWithDB(db *sqlx.DB, config Config) *Manager {
	return &Manager{
		db:     db,
		config: config,
		store:  postgres.NewStore(db, config.QueryTimeout),
	}
}

// Store returns the PostgreSQL-backed store
func (m *Manager) Store() *postgres.Store {
	return m.store
}

// DB returns the underlying pool
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Migrate applies pending schema migrations
func (m *Manager) Migrate(ctx context.Context) error {
	return postgres.MigrateUp(ctx, m.db.DB)
}

// Health pings the database and reports pool statistics
func (m *Manager) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()

	check := persistence.HealthCheck{Healthy: true, Backend: "postgres"}
	if err := m.db.PingContext(pingCtx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, fmt.Sprintf("ping failed: %v", err))
	}

	stats := m.db.Stats()
	check.ConnectionPool = map[string]int{
		"max_open":   stats.MaxOpenConnections,
		"open":       stats.OpenConnections,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
		"wait_count": int(stats.WaitCount),
	}
	check.LastCheck = time.Now()
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}

// Close closes the pool
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
