package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sawpanic/sentirun/internal/ingest"
	slog "github.com/sawpanic/sentirun/internal/log"
	"github.com/sawpanic/sentirun/internal/market"
	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/social"
)

// Skip reasons recorded when a symbol yields no opportunity
const (
	SkipSentimentError    = "sentiment_error"
	SkipInsufficientPosts = "insufficient_posts"
	SkipNoPrices          = "no_prices"
	SkipNoSignal          = "no_signal"
	SkipLowConviction     = "low_conviction"
	SkipNoPosition        = "no_position"
)

// SentimentSource produces the trailing sentiment aggregate for a symbol
type SentimentSource interface {
	Aggregate(ctx context.Context, query, window string) (*ingest.AggregateResult, error)
}

// Config tunes the scanner
type Config struct {
	MaxLoss           float64       `yaml:"max_loss" env:"SENTIRUN_MAX_LOSS"`
	Workers           int           `yaml:"workers"`
	RequestsPerSecond float64       `yaml:"rps"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	SentimentWindow   string        `yaml:"sentiment_window"`
	MinPosts          int           `yaml:"min_posts"`
	PriceHistoryDays  int           `yaml:"price_history_days"`
	ProgressEvery     int           `yaml:"progress_every"`
}

// DefaultConfig returns a $2000 max loss, 4 workers at 2 symbols/s and a 7d window
func DefaultConfig() Config {
	return Config{
		MaxLoss:           2000,
		Workers:           4,
		RequestsPerSecond: 2,
		Burst:             4,
		SentimentWindow:   "7d",
		MinPosts:          5,
		PriceHistoryDays:  90,
		ProgressEvery:     20,
	}
}

// Opportunity is one ranked trade idea
type Opportunity struct {
	Symbol              string     `json:"symbol"`
	DisplayName         string     `json:"display_name"`
	ConvictionScore     float64    `json:"conviction_score"`
	SignalType          SignalType `json:"signal_type"`
	ReasonText          string     `json:"reason"`
	SentimentPolarity   float64    `json:"sentiment_polarity"`
	SentimentConfidence float64    `json:"sentiment_confidence"`
	PriceChange7d       float64    `json:"price_change_7d"`
	PriceChange30d      float64    `json:"price_change_30d"`
	EntryPrice          float64    `json:"entry_price"`
	StopLoss            float64    `json:"stop_loss"`
	Target1             float64    `json:"target_1"`
	Target2             float64    `json:"target_2"`
	Target3             float64    `json:"target_3"`
	PositionSizeUnits   int64      `json:"position_size_units"`
	PositionValue       int64      `json:"position_value"`
	RiskRewardRatio     float64    `json:"risk_reward_ratio"`
}

// Scanner ranks symbols by sentiment and price divergence
type Scanner struct {
	sentiment SentimentSource
	prices    market.PriceProvider
	config    Config
	limiter   *rate.Limiter
	metrics   *metrics.Registry
	now       func() time.Time
}

// New creates a scanner; zero config fields take their defaults
func New(sentiment SentimentSource, prices market.PriceProvider, config Config) *Scanner {
	d := DefaultConfig()
	if config.MaxLoss <= 0 {
		config.MaxLoss = d.MaxLoss
	}
	if config.Workers <= 0 {
		config.Workers = d.Workers
	}
	if config.Burst <= 0 {
		config.Burst = d.Burst
	}
	if config.SentimentWindow == "" {
		config.SentimentWindow = d.SentimentWindow
	}
	if config.MinPosts <= 0 {
		config.MinPosts = d.MinPosts
	}
	if config.PriceHistoryDays <= 0 {
		config.PriceHistoryDays = d.PriceHistoryDays
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = d.ProgressEvery
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Scanner{
		sentiment: sentiment,
		prices:    prices,
		config:    config,
		limiter:   rate.NewLimiter(limit, config.Burst),
		now:       time.Now,
	}
}

// WithMetrics attaches a metrics registry
func (s *Scanner) WithMetrics(m *metrics.Registry) *Scanner {
	s.metrics = m
	return s
}

// WithClock replaces the time source, mainly for tests
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan evaluates symbols and returns opportunities with conviction of at
// least minConviction, highest first, ties in input order, at most
// maxResults. When ctx or the configured timeout expires no new symbols are
// started and the opportunities found so far are returned.
func (s *Scanner) Scan(ctx context.Context, symbols []string, minConviction float64, maxResults int) ([]Opportunity, error) {
	if maxResults < 0 {
		return nil, fmt.Errorf("max results %d: %w", maxResults, social.ErrInvalidInput)
	}
	if len(symbols) == 0 || maxResults == 0 {
		return []Opportunity{}, nil
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	log.Info().Int("symbols", len(symbols)).Float64("min_conviction", minConviction).Msg("Scanning for opportunities")
	progress := slog.NewProgress("scan", len(symbols), s.config.ProgressEvery)
	found := make([]*Opportunity, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.config.Workers)

	launched := 0
	for i, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		launched++
		i, symbol := i, symbol
		g.Go(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				progress.Failure()
				return nil
			}
			opp, reason := s.evaluate(ctx, symbol, minConviction)
			if opp == nil {
				s.metrics.IncSkipped(reason)
				log.Debug().Str("symbol", symbol).Str("reason", reason).Msg("Symbol skipped")
				progress.Increment()
				return nil
			}
			found[i] = opp
			s.metrics.IncOpportunity(string(opp.SignalType))
			log.Info().Str("symbol", symbol).Float64("conviction", opp.ConvictionScore).Str("signal", string(opp.SignalType)).Msg("Found opportunity")
			progress.Increment()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Opportunity, 0, len(found))
	for _, opp := range found {
		if opp != nil {
			out = append(out, *opp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConvictionScore > out[j].ConvictionScore })

	if ctx.Err() != nil {
		log.Warn().Err(ctx.Err()).Int("launched", launched).Int("total", len(symbols)).Msg("Scan deadline reached, returning partial results")
	}
	progress.Finish(fmt.Sprintf("Scan complete: %d opportunities", len(out)))

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// evaluate returns an opportunity for symbol or the reason it was skipped
func (s *Scanner) evaluate(ctx context.Context, symbol string, minConviction float64) (*Opportunity, string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	agg, err := s.sentiment.Aggregate(ctx, symbol, s.config.SentimentWindow)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("Sentiment unavailable")
		return nil, SkipSentimentError
	}
	if agg.PostsProcessed < s.config.MinPosts {
		return nil, SkipInsufficientPosts
	}

	bars, err := s.prices.GetBars(ctx, symbol, market.LastDays(s.now(), s.config.PriceHistoryDays))
	if err != nil || len(bars) == 0 {
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Price data unavailable")
		}
		return nil, SkipNoPrices
	}

	name := agg.Instrument.DisplayName
	if name == "" {
		name = symbol
	}
	opp, reason := Evaluate(Inputs{
		Symbol:      symbol,
		DisplayName: name,
		Polarity:    agg.WeightedSentiment,
		Confidence:  agg.AvgConfidence,
		Change7d:    market.PercentChange(bars, 7),
		Change30d:   market.PercentChange(bars, 30),
		LastClose:   bars[len(bars)-1].Close,
	}, s.config.MaxLoss)
	if opp == nil {
		return nil, reason
	}
	if opp.ConvictionScore < minConviction {
		return nil, SkipLowConviction
	}
	return opp, ""
}

// Inputs are the per-symbol facts the scoring rules consume
type Inputs struct {
	Symbol      string
	DisplayName string
	Polarity    float64
	Confidence  float64
	Change7d    float64
	Change30d   float64
	LastClose   float64
}

// Evaluate applies the classification, conviction floor and trade plan rules
func Evaluate(in Inputs, maxLoss float64) (*Opportunity, string) {
	signal, ok := Classify(in.Polarity, in.Change7d, in.Change30d)
	if !ok {
		return nil, SkipNoSignal
	}

	conviction := Conviction(signal.Base, in.Confidence)
	if conviction < MinConviction {
		return nil, SkipLowConviction
	}

	plan, ok := PlanTrade(in.LastClose, maxLoss)
	if !ok {
		return nil, SkipNoPosition
	}

	return &Opportunity{
		Symbol:              in.Symbol,
		DisplayName:         in.DisplayName,
		ConvictionScore:     conviction,
		SignalType:          signal.Type,
		ReasonText:          signal.Reason,
		SentimentPolarity:   in.Polarity,
		SentimentConfidence: in.Confidence,
		PriceChange7d:       in.Change7d,
		PriceChange30d:      in.Change30d,
		EntryPrice:          plan.Entry.InexactFloat64(),
		StopLoss:            plan.Stop.InexactFloat64(),
		Target1:             plan.Target1.InexactFloat64(),
		Target2:             plan.Target2.InexactFloat64(),
		Target3:             plan.Target3.InexactFloat64(),
		PositionSizeUnits:   plan.Size,
		PositionValue:       plan.PositionValue,
		RiskRewardRatio:     plan.RiskReward.InexactFloat64(),
	}, ""
}
