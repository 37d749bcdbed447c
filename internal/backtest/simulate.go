package backtest

import (
	"math"

	"github.com/sawpanic/sentirun/internal/market"
)

const (
	stopFactor    = 0.9
	target1Factor = 1.2
	target2Factor = 1.5
	target3Factor = 2.0
	momentumBoost = 0.2
)

// SentimentProxy estimates sentiment on bars[i] from the price move over the
// bars dated within ProxyWindow before it, scaled to [0,1]. Fewer than five
// bars give a neutral 0.5.
func SentimentProxy(bars []market.PriceBar, i int, strategy string) float64 {
	if i <= 0 || i >= len(bars) {
		return 0.5
	}

	cutoff := bars[i].Date.Add(-ProxyWindow)
	lo := i
	for lo > 0 && !bars[lo-1].Date.Before(cutoff) {
		lo--
	}
	if i-lo < 5 {
		return 0.5
	}

	first, last := bars[lo].Close, bars[i-1].Close
	if first == 0 {
		return 0.5
	}

	s := clip(2*(last-first)/first, -1, 1)
	if strategy == StrategyMomentum {
		s += momentumBoost
	}
	return clip((s+1)/2, 0, 1)
}

// HasFullWindow reports whether bars reach back a whole ProxyWindow before bars[i]
func HasFullWindow(bars []market.PriceBar, i int) bool {
	if i <= 0 || i >= len(bars) {
		return false
	}
	return !bars[0].Date.After(bars[i].Date.Add(-ProxyWindow))
}

// SimulateTrade enters at bars[i].Close and walks up to holdDays bars.
// Within a bar the stop is checked first, then the highest target reached.
// Without an exit the trade closes at bars[i+holdDays]. The caller must
// ensure i+holdDays < len(bars).
func SimulateTrade(symbol string, bars []market.PriceBar, i, holdDays, size int) Trade {
	entry := bars[i].Close
	stop := entry * stopFactor
	t1, t2, t3 := entry*target1Factor, entry*target2Factor, entry*target3Factor

	exitIdx, exitPrice, reason := i+holdDays, bars[i+holdDays].Close, ExitTimeout
	for j := i + 1; j <= i+holdDays; j++ {
		bar := bars[j]
		switch {
		case bar.Low <= stop:
			exitIdx, exitPrice, reason = j, stop, ExitStopLoss
		case bar.High >= t3:
			exitIdx, exitPrice, reason = j, t3, ExitTarget3
		case bar.High >= t2:
			exitIdx, exitPrice, reason = j, t2, ExitTarget2
		case bar.High >= t1:
			exitIdx, exitPrice, reason = j, t1, ExitTarget1
		default:
			continue
		}
		break
	}

	profit := (exitPrice - entry) * float64(size)
	return Trade{
		Symbol:      symbol,
		EntryDate:   bars[i].Date,
		EntryPrice:  entry,
		ExitDate:    bars[exitIdx].Date,
		ExitPrice:   exitPrice,
		ExitReason:  reason,
		GainPct:     (exitPrice - entry) / entry,
		ProfitUnits: profit,
		IsWin:       profit > 0,
	}
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
