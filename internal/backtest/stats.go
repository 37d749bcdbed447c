package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// annualization factor for per-trade returns
var tradingDays = math.Sqrt(252)

// ComputeStats summarizes trades in the order they were generated
func ComputeStats(trades []Trade) Stats {
	var s Stats
	if len(trades) == 0 {
		return s
	}

	var (
		winSum, lossSum, gainSum float64
		grossProfit, grossLoss   float64
		largestWin, largestLoss  float64
		returns                  = make([]float64, 0, len(trades))
		curWins, curLosses       int
	)

	for _, t := range trades {
		s.TotalTrades++
		s.TotalProfit += t.ProfitUnits
		gainSum += t.GainPct
		returns = append(returns, t.GainPct)

		if t.IsWin {
			s.WinningTrades++
			winSum += t.GainPct
			grossProfit += t.ProfitUnits
			if s.WinningTrades == 1 || t.GainPct > largestWin {
				largestWin = t.GainPct
			}
			curWins++
			curLosses = 0
			s.ConsecutiveWins = max(s.ConsecutiveWins, curWins)
		} else {
			s.LosingTrades++
			lossSum += t.GainPct
			grossLoss += t.ProfitUnits
			if s.LosingTrades == 1 || t.GainPct < largestLoss {
				largestLoss = t.GainPct
			}
			curLosses++
			curWins = 0
			s.ConsecutiveLosses = max(s.ConsecutiveLosses, curLosses)
		}
	}

	n := float64(s.TotalTrades)
	s.WinRatePct = float64(s.WinningTrades) / n * 100
	s.AvgGainPct = gainSum / n * 100
	if s.WinningTrades > 0 {
		s.AvgWinPct = winSum / float64(s.WinningTrades) * 100
		s.LargestWinPct = largestWin * 100
	}
	if s.LosingTrades > 0 {
		s.AvgLossPct = lossSum / float64(s.LosingTrades) * 100
		s.LargestLossPct = largestLoss * 100
	}
	if grossLoss = math.Abs(grossLoss); grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	}

	s.SharpeRatio = Sharpe(returns)
	s.MaxDrawdownPct = MaxDrawdown(trades) * 100
	return s.rounded()
}

// Sharpe is mean over population standard deviation, annualized by sqrt(252).
// It is 0 for fewer than two returns or zero deviation.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(variance / float64(len(returns)))
	if sd == 0 {
		return 0
	}
	return mean / sd * tradingDays
}

// MaxDrawdown is the most negative (cum - peak)/|peak| over the cumulative
// profit curve, where peak is the running maximum. Points whose peak is zero
// contribute 0.
func MaxDrawdown(trades []Trade) float64 {
	var cum, peak, worst float64
	for i, t := range trades {
		cum += t.ProfitUnits
		if i == 0 || cum > peak {
			peak = cum
		}
		if peak == 0 {
			continue
		}
		if dd := (cum - peak) / math.Abs(peak); dd < worst {
			worst = dd
		}
	}
	return worst
}

func (s Stats) rounded() Stats {
	s.WinRatePct = round(s.WinRatePct, 2)
	s.AvgWinPct = round(s.AvgWinPct, 2)
	s.AvgLossPct = round(s.AvgLossPct, 2)
	s.AvgGainPct = round(s.AvgGainPct, 2)
	s.TotalProfit = round(s.TotalProfit, 2)
	s.LargestWinPct = round(s.LargestWinPct, 2)
	s.LargestLossPct = round(s.LargestLossPct, 2)
	s.ProfitFactor = round(s.ProfitFactor, 2)
	s.SharpeRatio = round(s.SharpeRatio, 2)
	s.MaxDrawdownPct = round(s.MaxDrawdownPct, 2)
	return s
}

// roundTrade rounds prices and profit to cents and the gain to basis points
func roundTrade(t Trade) Trade {
	t.EntryPrice = round(t.EntryPrice, 2)
	t.ExitPrice = round(t.ExitPrice, 2)
	t.ProfitUnits = round(t.ProfitUnits, 2)
	t.GainPct = round(t.GainPct, 4)
	return t
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
