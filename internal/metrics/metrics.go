package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics for the pipeline. A nil *Registry is
// valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Ingestion
	PostsCollected *prometheus.CounterVec
	PostsDropped   *prometheus.CounterVec
	SourceErrors   *prometheus.CounterVec
	Aggregations   *prometheus.CounterVec

	// Step timings
	StepDuration *prometheus.HistogramVec

	// Scanner
	Opportunities  *prometheus.CounterVec
	SymbolsSkipped *prometheus.CounterVec

	// Backtest
	BacktestTrades *prometheus.CounterVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
}

// NewRegistry creates a registry with every sentirun metric registered on a
// private Prometheus registry
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		PostsCollected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_posts_collected_total",
				Help: "Posts returned by collectors",
			},
			[]string{"source"},
		),

		PostsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_posts_dropped_total",
				Help: "Posts dropped during cleaning or persistence by reason",
			},
			[]string{"reason"},
		),

		SourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_source_errors_total",
				Help: "Collector failures and timeouts",
			},
			[]string{"source"},
		),

		Aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_aggregations_total",
				Help: "Aggregate calls by result",
			},
			[]string{"result"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentirun_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"step", "result"},
		),

		Opportunities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_opportunities_total",
				Help: "Opportunities emitted by the scanner by signal type",
			},
			[]string{"signal_type"},
		),

		SymbolsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_scan_symbols_skipped_total",
				Help: "Symbols excluded from a scan by reason",
			},
			[]string{"reason"},
		),

		BacktestTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_backtest_trades_total",
				Help: "Simulated trades by exit reason",
			},
			[]string{"exit_reason"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentirun_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	r.registry.MustRegister(
		r.PostsCollected,
		r.PostsDropped,
		r.SourceErrors,
		r.Aggregations,
		r.StepDuration,
		r.Opportunities,
		r.SymbolsSkipped,
		r.BacktestTrades,
		r.HTTPRequests,
		prometheus.NewGoCollector(),
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveStep records how long a step took
func (r *Registry) ObserveStep(step, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.StepDuration.WithLabelValues(step, result).Observe(d.Seconds())
}

// AddCollected records n posts from source
func (r *Registry) AddCollected(source string, n int) {
	if r == nil {
		return
	}
	r.PostsCollected.WithLabelValues(source).Add(float64(n))
}

// IncDropped records one dropped post
func (r *Registry) IncDropped(reason string) {
	if r == nil {
		return
	}
	r.PostsDropped.WithLabelValues(reason).Inc()
}

// IncSourceError records one collector failure
func (r *Registry) IncSourceError(source string) {
	if r == nil {
		return
	}
	r.SourceErrors.WithLabelValues(source).Inc()
}

// IncAggregation records an aggregate call outcome
func (r *Registry) IncAggregation(result string) {
	if r == nil {
		return
	}
	r.Aggregations.WithLabelValues(result).Inc()
}

// IncOpportunity records one emitted opportunity
func (r *Registry) IncOpportunity(signalType string) {
	if r == nil {
		return
	}
	r.Opportunities.WithLabelValues(signalType).Inc()
}

// IncSkipped records one symbol excluded from a scan
func (r *Registry) IncSkipped(reason string) {
	if r == nil {
		return
	}
	r.SymbolsSkipped.WithLabelValues(reason).Inc()
}

// IncTrade records one simulated trade
func (r *Registry) IncTrade(exitReason string) {
	if r == nil {
		return
	}
	r.BacktestTrades.WithLabelValues(exitReason).Inc()
}

// IncHTTP records one API request
func (r *Registry) IncHTTP(route, code string) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, code).Inc()
}
