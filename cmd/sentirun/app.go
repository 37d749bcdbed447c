package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/cache"
	"github.com/sawpanic/sentirun/internal/config"
	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/infrastructure/db"
	"github.com/sawpanic/sentirun/internal/infrastructure/httpclient"
	"github.com/sawpanic/sentirun/internal/ingest"
	"github.com/sawpanic/sentirun/internal/market"
	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/persistence/memory"
	"github.com/sawpanic/sentirun/internal/persistence/sqlite"
	"github.com/sawpanic/sentirun/internal/resolver"
	"github.com/sawpanic/sentirun/internal/scanner"
	"github.com/sawpanic/sentirun/internal/social"
	"github.com/sawpanic/sentirun/internal/stream"
)

// app holds the services shared by every subcommand
type app struct {
	cfg          *config.Config
	store        persistence.Store
	dbManager    *db.Manager
	redis        *redis.Client
	guards       *datasources.GuardRegistry
	client       *httpclient.Pool
	metrics      *metrics.Registry
	scorer       nlp.Scorer
	orchestrator *ingest.Orchestrator
	prices       market.PriceProvider
	scanner      *scanner.Scanner
	engine       *backtest.Engine
	publisher    stream.Publisher
}

// newApp opens the configured store and builds the pipeline on top of it
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		guards:  cfg.GuardRegistry(),
		metrics: metrics.NewRegistry(),
	}

	httpCfg := cfg.HTTP
	if httpCfg.UserAgent == "" {
		httpCfg.UserAgent = appName + "/" + version
	}
	a.client = httpclient.New(httpCfg)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	caches := resolver.Chain{resolver.NewMemoryCache()}
	if cfg.Redis.Enabled() {
		client, err := cache.NewClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		caches = append(caches, cache.NewResolutionCache(client, cfg.Redis.Prefix, resolver.CacheTTL))
	}
	caches = append(caches, resolver.NewStoreCache(a.store))

	scorer, err := nlp.NewScorer(cfg.Sentiment, a.client, a.guards.Get("sentiment"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scorer = scorer

	a.orchestrator = ingest.NewOrchestrator(
		resolver.New(caches, cfg.Aliases),
		social.NewCollectors(cfg.Sources, a.client, a.guards),
		scorer,
		nlp.DefaultCrudeFilter(),
		a.store,
		cfg.Ingest,
	).WithMetrics(a.metrics)

	a.prices = market.NewEODHDProvider(cfg.Prices, a.client, a.guards.Get("eodhd"))
	a.scanner = scanner.New(a.orchestrator, a.prices, cfg.Scanner.Config).WithMetrics(a.metrics)
	a.engine = backtest.NewEngine(a.prices).WithMetrics(a.metrics)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		m, err := db.NewManager(ctx, a.cfg.Store.Postgres)
		if err != nil {
			return err
		}
		a.dbManager = m
		a.store = m.Store()
	case config.BackendSQLite:
		s, err := sqlite.Open(a.cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		a.store = s
	default:
		a.store = memory.New()
	}
	log.Debug().Str("backend", a.cfg.Store.Backend).Msg("Store opened")
	return nil
}

// enablePublishing connects the Kafka publisher. It is an error to ask for
// publishing without brokers.
func (a *app) enablePublishing() error {
	if !a.cfg.Kafka.Enabled() {
		return errors.New("publishing requires kafka brokers (KAFKA_BROKERS)")
	}
	p, err := stream.NewKafkaPublisher(a.cfg.Kafka)
	if err != nil {
		return err
	}
	a.publisher = p
	return nil
}

// publish wraps payload in an envelope and sends it when publishing is enabled
func (a *app) publish(ctx context.Context, kind, symbol string, payload interface{}) error {
	if a.publisher == nil {
		return nil
	}
	env, err := stream.NewEnvelope(kind, symbol, payload, time.Now())
	if err != nil {
		return err
	}
	return a.publisher.Publish(ctx, env)
}

// health reports store and redis status
func (a *app) health(ctx context.Context) map[string]persistence.HealthCheck {
	checks := make(map[string]persistence.HealthCheck)
	if a.dbManager != nil {
		checks["store"] = a.dbManager.Health(ctx)
	} else {
		checks["store"] = persistence.Check(ctx, a.cfg.Store.Backend, a.store)
	}

	if a.redis != nil {
		start := time.Now()
		check := persistence.HealthCheck{Healthy: true, Backend: "redis"}
		if err := a.redis.Ping(ctx).Err(); err != nil {
			check.Healthy = false
			check.Errors = append(check.Errors, err.Error())
		}
		check.LastCheck = time.Now()
		check.ResponseTimeMS = time.Since(start).Milliseconds()
		checks["redis"] = check
	}
	return checks
}

// Close releases every connection the app opened
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
