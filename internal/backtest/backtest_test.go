package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/market"
	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/social"
)

var testNow = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func dailyBars(n int, close func(i int) float64) []market.PriceBar {
	bars := make([]market.PriceBar, n)
	for i := range bars {
		c := close(i)
		bars[i] = market.PriceBar{Date: testNow.AddDate(0, 0, i-n+1), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func flat(v float64) func(int) float64 { return func(int) float64 { return v } }

func TestSimulateTrade_HighestTargetWins(t *testing.T) {
	bars := dailyBars(5, flat(100))
	bars[1].High = 210

	trade := SimulateTrade("AAPL", bars, 0, 3, 100)
	assert.Equal(t, ExitTarget3, trade.ExitReason)
	assert.Equal(t, 200.0, trade.ExitPrice)
	assert.Equal(t, bars[1].Date, trade.ExitDate)
	assert.InDelta(t, 1.0, trade.GainPct, 1e-9)
	assert.InDelta(t, 10000.0, trade.ProfitUnits, 1e-9)
	assert.True(t, trade.IsWin)
}

func TestSimulateTrade_StopCheckedFirst(t *testing.T) {
	bars := dailyBars(5, flat(100))
	bars[2].High = 250
	bars[2].Low = 89

	trade := SimulateTrade("AAPL", bars, 0, 3, 10)
	assert.Equal(t, ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, 90.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, -100.0, trade.ProfitUnits, 1e-9)
	assert.False(t, trade.IsWin)
}

func TestSimulateTrade_Timeout(t *testing.T) {
	bars := dailyBars(6, func(i int) float64 { return 100 + float64(i) })

	trade := SimulateTrade("AAPL", bars, 1, 3, 1)
	assert.Equal(t, ExitTimeout, trade.ExitReason)
	assert.Equal(t, bars[4].Date, trade.ExitDate)
	assert.Equal(t, 104.0, trade.ExitPrice)
	assert.True(t, trade.IsWin)
}

func TestSentimentProxy(t *testing.T) {
	bars := dailyBars(11, func(i int) float64 {
		if i == 9 {
			return 110
		}
		return 100
	})

	// +10% over the prior bars: s = 0.2
	assert.InDelta(t, 0.6, SentimentProxy(bars, 10, StrategyReversal), 1e-9)
	assert.InDelta(t, 0.7, SentimentProxy(bars, 10, StrategyMomentum), 1e-9)
	// only four prior bars
	assert.Equal(t, 0.5, SentimentProxy(bars, 4, StrategyMomentum))

	// window only reaches back 30 days
	long := dailyBars(40, func(i int) float64 {
		if i < 9 {
			return 1
		}
		return 100
	})
	assert.InDelta(t, 0.5, SentimentProxy(long, 39, StrategyReversal), 1e-9)

	crash := dailyBars(10, func(i int) float64 { return 100 - float64(i)*10 })
	assert.Equal(t, 0.0, SentimentProxy(crash, 9, StrategyReversal))
}

func TestMaxDrawdown(t *testing.T) {
	trades := func(profits ...float64) []Trade {
		out := make([]Trade, len(profits))
		for i, p := range profits {
			out[i] = Trade{ProfitUnits: p}
		}
		return out
	}

	assert.InDelta(t, -1.5, MaxDrawdown(trades(100, -50, -100)), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown(trades(0, -10)))
	assert.InDelta(t, -1.0, MaxDrawdown(trades(-10, -10)), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown(trades(10, 20, 30)))
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{0.1}))
	assert.Equal(t, 0.0, Sharpe([]float64{0.1, 0.1}))
	assert.InDelta(t, math.Sqrt(252), Sharpe([]float64{0.2, 0.0}), 1e-9)
}

func TestComputeStats(t *testing.T) {
	trades := []Trade{
		{GainPct: 0.2, ProfitUnits: 2000, IsWin: true},
		{GainPct: -0.1, ProfitUnits: -1000},
		{GainPct: 0.5, ProfitUnits: 5000, IsWin: true},
	}

	s := ComputeStats(trades)
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 66.67, s.WinRatePct)
	assert.Equal(t, 35.0, s.AvgWinPct)
	assert.Equal(t, -10.0, s.AvgLossPct)
	assert.Equal(t, 20.0, s.AvgGainPct)
	assert.Equal(t, 6000.0, s.TotalProfit)
	assert.Equal(t, 50.0, s.LargestWinPct)
	assert.Equal(t, -10.0, s.LargestLossPct)
	assert.Equal(t, 7.0, s.ProfitFactor)
	assert.Equal(t, 12.96, s.SharpeRatio)
	assert.Equal(t, -50.0, s.MaxDrawdownPct)
	assert.Equal(t, 1, s.ConsecutiveWins)
	assert.Equal(t, 1, s.ConsecutiveLosses)

	noLosers := ComputeStats([]Trade{{GainPct: 0.1, ProfitUnits: 10, IsWin: true}, {GainPct: 0.1, ProfitUnits: 10, IsWin: true}})
	assert.Equal(t, 0.0, noLosers.ProfitFactor)
	assert.Equal(t, 2, noLosers.ConsecutiveWins)
	assert.Equal(t, 0.0, noLosers.SharpeRatio)
}

func TestRequest_Validate(t *testing.T) {
	base := Request{Symbols: []string{"AAPL"}}.WithDefaults(testNow)
	require.NoError(t, base.Validate())
	assert.Equal(t, DefaultHoldDays, base.HoldDays)
	assert.Equal(t, DefaultPositionSize, base.PositionSize)
	assert.Equal(t, DefaultThreshold, base.EntryThreshold())
	assert.Equal(t, StrategyMomentum, base.Strategy)
	assert.Equal(t, testNow.Add(-DefaultLookback), base.Start)

	bad := []Request{
		{HoldDays: -1},
		{PositionSize: -5},
		{Start: testNow, End: testNow.Add(-time.Hour)},
		{Threshold: Float(1.5)},
		{Threshold: Float(-0.1)},
		{Strategy: "yolo"},
	}
	for _, req := range bad {
		err := req.WithDefaults(testNow).Validate()
		assert.True(t, errors.Is(err, social.ErrInvalidInput), "%+v", req)
	}
}

func TestEngine_EmptySymbols(t *testing.T) {
	report, err := NewEngine(market.NewStaticProvider()).Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, report.Empty)
	assert.Equal(t, NoTradesMessage, report.Message)
	assert.Zero(t, report.TotalTrades)
	assert.NotEmpty(t, report.RunID)
}

func TestEngine_InvalidRequest(t *testing.T) {
	_, err := NewEngine(market.NewStaticProvider()).Run(context.Background(), Request{Symbols: []string{"AAPL"}, HoldDays: -3})
	assert.True(t, errors.Is(err, social.ErrInvalidInput))
}

func TestEngine_Run(t *testing.T) {
	prices := market.NewStaticProvider().
		SetBars("RISE", dailyBars(120, func(i int) float64 { return 100 * math.Pow(1.01, float64(i)) })).
		SetBars("SHORT", dailyBars(10, flat(100))).
		SetBars("FALL", dailyBars(120, func(i int) float64 { return 100 - 0.1*float64(i) }))

	reg := metrics.NewRegistry()
	engine := NewEngine(prices).WithMetrics(reg).WithClock(func() time.Time { return testNow })

	report, err := engine.Run(context.Background(), Request{
		Symbols:  []string{"rise", "SHORT", "MISSING", "FALL"},
		Strategy: StrategyMomentum,
		Start:    testNow.AddDate(0, 0, -89),
		End:      testNow,
	})
	require.NoError(t, err)
	require.False(t, report.Empty)

	assert.ElementsMatch(t, []string{"SHORT", "MISSING"}, report.SkippedSymbols)
	// RISE enters from the start bar (30) to bar 89; FALL never clears the threshold
	assert.Equal(t, 60, report.TotalTrades)
	assert.Equal(t, 60, report.WinningTrades)
	assert.Equal(t, 60, report.ConsecutiveWins)
	assert.Len(t, report.Trades, MaxReportedTrades)

	first := report.Trades[0]
	assert.Equal(t, "RISE", first.Symbol)
	assert.Equal(t, testNow.AddDate(0, 0, -89), first.EntryDate)
	assert.Equal(t, ExitTarget1, first.ExitReason)
	assert.Equal(t, 0.2, first.GainPct)
	assert.Equal(t, 60.0, testutil.ToFloat64(reg.BacktestTrades.WithLabelValues(ExitTarget1)))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.BacktestTrades.WithLabelValues(ExitTimeout)))
}

func TestHasFullWindow(t *testing.T) {
	bars := dailyBars(40, flat(100))
	assert.False(t, HasFullWindow(bars, 0))
	assert.False(t, HasFullWindow(bars, 29))
	assert.True(t, HasFullWindow(bars, 30))
	assert.True(t, HasFullWindow(bars, 39))
	assert.False(t, HasFullWindow(bars, 40))
}

func TestEngine_EntriesNeedFullProxyWindow(t *testing.T) {
	// slide from 200 to 100, bounce to 106, then go flat
	series := dailyBars(100, func(i int) float64 {
		switch {
		case i <= 30:
			return 200 - 100*float64(i)/30
		case i <= 36:
			return 100 + float64(i-30)
		default:
			return 106
		}
	})
	prices := market.NewStaticProvider().SetBars("BOUNCE", series)
	engine := NewEngine(prices).WithClock(func() time.Time { return testNow })

	start := series[60].Date
	report, err := engine.Run(context.Background(), Request{
		Symbols:  []string{"BOUNCE"},
		Strategy: StrategyMomentum,
		Start:    start,
		End:      testNow,
		HoldDays: 5,
	})
	require.NoError(t, err)
	require.False(t, report.Empty)

	index := make(map[time.Time]int, len(series))
	for i, bar := range series {
		index[bar.Date] = i
	}
	for _, trade := range report.Trades {
		assert.False(t, trade.EntryDate.Before(start), "entry %s before start", trade.EntryDate)
		i, ok := index[trade.EntryDate]
		require.True(t, ok)
		assert.True(t, HasFullWindow(series, i))
		assert.GreaterOrEqual(t, SentimentProxy(series, i, StrategyMomentum), DefaultThreshold)
	}
}

func TestEngine_SkipsEntriesBeforeHistoryCoversWindow(t *testing.T) {
	listed := dailyBars(40, func(i int) float64 { return 100 * math.Pow(1.01, float64(i)) })
	prices := market.NewStaticProvider().SetBars("NEW", listed)
	engine := NewEngine(prices).WithClock(func() time.Time { return testNow })

	report, err := engine.Run(context.Background(), Request{
		Symbols:  []string{"NEW"},
		Start:    testNow.AddDate(0, 0, -90),
		End:      testNow,
		HoldDays: 5,
	})
	require.NoError(t, err)
	// bars 30..34: the first 30 days only feed the proxy
	assert.Equal(t, 5, report.TotalTrades)
	assert.Equal(t, listed[30].Date, report.Trades[0].EntryDate)
}

func TestEngine_ZeroThresholdIsHonoured(t *testing.T) {
	bars := dailyBars(60, flat(100))
	prices := market.NewStaticProvider().SetBars("FLAT", bars)
	engine := NewEngine(prices).WithClock(func() time.Time { return testNow })

	req := Request{
		Symbols:  []string{"FLAT"},
		Strategy: StrategyReversal,
		Start:    bars[30].Date,
		End:      testNow,
		HoldDays: 5,
	}

	report, err := engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, report.Empty)
	assert.Equal(t, DefaultThreshold, report.Threshold)

	req.Threshold = Float(0)
	report, err = engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.Threshold)
	// bars 30..54 leave room for the holding period
	assert.Equal(t, 25, report.TotalTrades)
}
