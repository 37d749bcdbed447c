package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	slog "github.com/sawpanic/sentirun/internal/log"
	"github.com/sawpanic/sentirun/internal/market"
	"github.com/sawpanic/sentirun/internal/metrics"
)

// Engine replays a strategy over historical bars
type Engine struct {
	prices  market.PriceProvider
	metrics *metrics.Registry
	now     func() time.Time
}

// NewEngine creates an engine reading bars from prices
func NewEngine(prices market.PriceProvider) *Engine {
	return &Engine{prices: prices, now: time.Now}
}

// WithMetrics attaches a metrics registry
func (e *Engine) WithMetrics(m *metrics.Registry) *Engine {
	e.metrics = m
	return e
}

// WithClock replaces the time source, mainly for tests
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run simulates req. Symbols without enough history are skipped and listed
// in the report. A run producing no trades returns an empty report, not an error.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	req = req.WithDefaults(e.now())
	if err := req.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        uuid.NewString(),
		Strategy:     req.Strategy,
		Symbols:      req.Symbols,
		Start:        req.Start,
		End:          req.End,
		HoldDays:     req.HoldDays,
		PositionSize: req.PositionSize,
		Threshold:    req.EntryThreshold(),
		Trades:       []Trade{},
		GeneratedAt:  e.now(),
	}

	log.Info().
		Str("run_id", report.RunID).
		Str("strategy", req.Strategy).
		Int("symbols", len(req.Symbols)).
		Time("start", req.Start).
		Time("end", req.End).
		Msg("Starting backtest")

	timer := slog.NewStepTimer("backtest")
	var trades []Trade
	for _, symbol := range req.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled: %w", err)
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))

		timer.Start("fetch")
		bars, err := e.prices.GetBars(ctx, symbol, market.Range{Start: req.Start.Add(-ProxyWindow - proxySlack), End: req.End})
		if err != nil || len(bars) < req.HoldDays {
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol, price fetch failed")
			} else {
				log.Warn().Str("symbol", symbol).Int("bars", len(bars)).Int("hold_days", req.HoldDays).Msg("Skipping symbol, insufficient history")
			}
			report.SkippedSymbols = append(report.SkippedSymbols, symbol)
			continue
		}

		timer.Start("simulate")
		trades = append(trades, e.simulate(symbol, bars, req)...)
	}
	timer.Start("report")

	if len(trades) == 0 {
		timer.Finish()
		report.Empty = true
		report.Message = NoTradesMessage
		log.Warn().Str("run_id", report.RunID).Msg("No trades generated in backtest")
		return report, nil
	}

	report.Stats = ComputeStats(trades)
	for i, t := range trades {
		if i >= MaxReportedTrades {
			break
		}
		report.Trades = append(report.Trades, roundTrade(t))
	}
	timer.Finish()

	log.Info().
		Str("run_id", report.RunID).
		Int("trades", report.TotalTrades).
		Float64("win_rate_pct", report.WinRatePct).
		Float64("total_profit", report.TotalProfit).
		Float64("sharpe", report.SharpeRatio).
		Msg("Backtest complete")

	return report, nil
}

// simulate enters only on bars inside the requested range whose proxy window
// is fully covered; earlier bars only feed the proxy
func (e *Engine) simulate(symbol string, bars []market.PriceBar, req Request) []Trade {
	threshold := req.EntryThreshold()
	var trades []Trade
	for i := 0; i+req.HoldDays < len(bars); i++ {
		if bars[i].Date.Before(req.Start) || bars[i].Close <= 0 || !HasFullWindow(bars, i) {
			continue
		}
		if SentimentProxy(bars, i, req.Strategy) < threshold {
			continue
		}
		t := SimulateTrade(symbol, bars, i, req.HoldDays, req.PositionSize)
		e.metrics.IncTrade(t.ExitReason)
		trades = append(trades, t)
	}
	return trades
}
