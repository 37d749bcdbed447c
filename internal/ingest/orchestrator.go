package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/nlp"
	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/social"
)

// NoPostsNote is set on results when no source returned anything
const NoPostsNote = "no posts collected"

// Resolver maps a query to an instrument
type Resolver interface {
	Resolve(ctx context.Context, query string) (social.Instrument, error)
}

// Config bounds the collector fan-out
type Config struct {
	MaxConcurrentSources int           `yaml:"max_concurrent_sources"`
	SourceTimeout        time.Duration `yaml:"source_timeout"`
}

// DefaultConfig returns three concurrent sources with a 10s timeout each
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSources: 3,
		SourceTimeout:        10 * time.Second,
	}
}

// AggregateResult is the per-symbol sentiment summary for one window
type AggregateResult struct {
	Symbol            string            `json:"symbol"`
	Instrument        social.Instrument `json:"instrument"`
	Window            string            `json:"window"`
	WindowStart       time.Time         `json:"window_start"`
	PostsFound        int               `json:"posts_found"`
	PostsProcessed    int               `json:"posts_processed"`
	Fetched           map[string]int    `json:"fetched"`
	SourceErrors      map[string]string `json:"source_errors,omitempty"`
	Dropped           map[string]int    `json:"dropped"`
	TotalCount        int               `json:"total_count"`
	WeightedSentiment float64           `json:"weighted_sentiment"`
	AvgConfidence     float64           `json:"avg_confidence"`
	PerSourceCounts   map[string]int    `json:"per_source_counts"`
	Note              string            `json:"note,omitempty"`
}

// Orchestrator runs the resolve, collect, clean, score, persist and aggregate steps
type Orchestrator struct {
	resolver   Resolver
	collectors []social.SourceCollector
	scorer     nlp.Scorer
	filter     nlp.NoiseFilter
	store      persistence.Store
	metrics    *metrics.Registry
	config     Config
	now        func() time.Time
}

// NewOrchestrator wires the pipeline. filter may be nil to keep every post with symbols.
func NewOrchestrator(
	resolver Resolver,
	collectors []social.SourceCollector,
	scorer nlp.Scorer,
	filter nlp.NoiseFilter,
	store persistence.Store,
	config Config,
) *Orchestrator {
	defaults := DefaultConfig()
	if config.MaxConcurrentSources <= 0 {
		config.MaxConcurrentSources = defaults.MaxConcurrentSources
	}
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = defaults.SourceTimeout
	}
	return &Orchestrator{
		resolver:   resolver,
		collectors: collectors,
		scorer:     scorer,
		filter:     filter,
		store:      store,
		config:     config,
		now:        time.Now,
	}
}

// WithMetrics attaches a metrics registry
func (o *Orchestrator) WithMetrics(m *metrics.Registry) *Orchestrator {
	o.metrics = m
	return o
}

// WithClock replaces the time source, mainly for tests
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Aggregate ingests posts about query from every source for the trailing
// window and returns the weighted sentiment. Only a malformed window or query
// and an unresolvable query fail the call; per-source and per-post failures
// are recorded in the result.
func (o *Orchestrator) Aggregate(ctx context.Context, query, window string) (*AggregateResult, error) {
	span, err := ParseWindow(window)
	if err != nil {
		o.metrics.IncAggregation("invalid_input")
		return nil, err
	}

	inst, err := o.resolver.Resolve(ctx, query)
	if err != nil {
		if errors.Is(err, social.ErrInvalidInput) {
			o.metrics.IncAggregation("invalid_input")
		} else {
			o.metrics.IncAggregation("not_found")
		}
		return nil, fmt.Errorf("resolve %q: %w", query, err)
	}

	since := o.now().Add(-span)
	result := &AggregateResult{
		Symbol:          inst.Symbol,
		Instrument:      inst,
		Window:          window,
		WindowStart:     since,
		Fetched:         make(map[string]int, len(o.collectors)),
		SourceErrors:    make(map[string]string),
		Dropped:         make(map[string]int, len(DropReasons)),
		AvgConfidence:   DefaultConfidence,
		PerSourceCounts: make(map[string]int),
	}
	for _, reason := range DropReasons {
		result.Dropped[reason] = 0
	}

	posts := o.collect(ctx, inst, since, result)
	result.PostsFound = len(posts)
	if len(posts) == 0 {
		result.Note = NoPostsNote
		o.metrics.IncAggregation("no_posts")
		log.Info().Str("symbol", inst.Symbol).Str("window", window).Msg("No posts collected")
		return result, nil
	}

	start := time.Now()
	for _, post := range posts {
		outcome := CleanPost(post, inst, o.filter)
		if !outcome.Kept() {
			o.drop(result, outcome.Reason)
			if outcome.Err != nil {
				log.Warn().Err(outcome.Err).Str("post", post.Key()).Msg("Post skipped")
			}
			continue
		}
		if reason, err := o.persist(ctx, outcome.Post); err != nil {
			o.drop(result, reason)
			log.Warn().Err(err).Str("post", post.Key()).Str("reason", reason).Msg("Post skipped")
			continue
		}
		result.PostsProcessed++
	}
	o.metrics.ObserveStep("process", "ok", time.Since(start))

	start = time.Now()
	rows, err := o.store.Aggregate(ctx, inst.Symbol, since)
	if err != nil {
		o.metrics.ObserveStep("aggregate", "error", time.Since(start))
		log.Warn().Err(err).Str("symbol", inst.Symbol).Msg("Store aggregation failed")
		result.Note = "aggregation unavailable"
	} else {
		o.metrics.ObserveStep("aggregate", "ok", time.Since(start))
		for _, row := range rows {
			result.PerSourceCounts[row.Source] = row.Count
		}
		result.WeightedSentiment, result.AvgConfidence, result.TotalCount = WeightedSentiment(rows)
	}

	o.metrics.IncAggregation("ok")
	log.Info().
		Str("symbol", inst.Symbol).
		Str("window", window).
		Int("posts_found", result.PostsFound).
		Int("posts_processed", result.PostsProcessed).
		Int("total_count", result.TotalCount).
		Float64("weighted_sentiment", result.WeightedSentiment).
		Msg("Aggregation complete")

	return result, nil
}

// collect fans out to every collector and fills the fetched and error maps.
// Posts are returned in collector order.
func (o *Orchestrator) collect(ctx context.Context, inst social.Instrument, since time.Time, result *AggregateResult) []social.RawPost {
	start := time.Now()
	batches := make([][]social.RawPost, len(o.collectors))
	errs := make([]error, len(o.collectors))

	var g errgroup.Group
	g.SetLimit(o.config.MaxConcurrentSources)
	for i, c := range o.collectors {
		i, c := i, c
		g.Go(func() error {
			batches[i], errs[i] = o.fetch(ctx, c, inst, since)
			return nil
		})
	}
	_ = g.Wait()

	var posts []social.RawPost
	for i, c := range o.collectors {
		name := c.Name()
		result.Fetched[name] += len(batches[i])
		if errs[i] != nil {
			result.SourceErrors[name] = errs[i].Error()
			o.metrics.IncSourceError(name)
			log.Warn().Err(errs[i]).Str("source", name).Str("symbol", inst.Symbol).Msg("Source returned no posts")
			continue
		}
		o.metrics.AddCollected(name, len(batches[i]))
		posts = append(posts, batches[i]...)
	}

	o.metrics.ObserveStep("collect", "ok", time.Since(start))
	return posts
}

// fetch runs one collector under its own timeout. Errors, timeouts and
// panics all yield no posts.
func (o *Orchestrator) fetch(ctx context.Context, c social.SourceCollector, inst social.Instrument, since time.Time) (posts []social.RawPost, err error) {
	defer func() {
		if r := recover(); r != nil {
			posts = nil
			err = fmt.Errorf("%w: collector panicked: %v", social.ErrSourceUnavailable, r)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, o.config.SourceTimeout)
	defer cancel()

	posts, err = c.Fetch(fetchCtx, inst, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", social.ErrSourceUnavailable, err)
	}
	return posts, nil
}

// persist scores one cleaned post, then stores the post and its score. On
// failure it returns the drop reason. A post that fails to score never
// reaches the store, so an earlier version keeps its text and score.
func (o *Orchestrator) persist(ctx context.Context, post social.CleanedPost) (string, error) {
	score, err := o.scorer.Score(ctx, post.Text)
	if err != nil {
		return ReasonScoreFailed, fmt.Errorf("score post: %w", err)
	}

	id, err := o.store.UpsertPost(ctx, post)
	if err != nil {
		return ReasonPersistFailed, fmt.Errorf("upsert post: %w", err)
	}

	if err := o.store.UpsertSentiment(ctx, id, score.Clamp()); err != nil {
		return ReasonPersistFailed, fmt.Errorf("upsert sentiment: %w", err)
	}
	return "", nil
}

func (o *Orchestrator) drop(result *AggregateResult, reason string) {
	result.Dropped[reason]++
	o.metrics.IncDropped(reason)
}
