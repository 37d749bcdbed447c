package scanner

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// SignalType names the divergence pattern behind an opportunity
type SignalType string

const (
	SignalReversal         SignalType = "reversal"
	SignalMomentum         SignalType = "momentum"
	SignalEmergingCatalyst SignalType = "emerging_catalyst"
)

const (
	// MinConviction is the floor below which no opportunity is emitted
	MinConviction = 3.5

	// DefaultMinConviction is the scan cutoff when the caller gives none
	DefaultMinConviction = 5.0
)

var (
	stopFactor    = decimal.RequireFromString("0.9")
	target1Factor = decimal.RequireFromString("1.2")
	target2Factor = decimal.RequireFromString("1.5")
	target3Factor = decimal.RequireFromString("2.0")
	two           = decimal.NewFromInt(2)
)

// Signal is a matched pattern with its base conviction and explanation
type Signal struct {
	Type   SignalType
	Base   float64
	Reason string
}

// Classify matches sentiment polarity and 7d/30d percent changes against the
// reversal, momentum and emerging catalyst patterns, first match wins
func Classify(polarity, change7d, change30d float64) (Signal, bool) {
	switch {
	case change30d < -15 && polarity > 0.6:
		return Signal{
			Type: SignalReversal,
			Base: 6,
			Reason: fmt.Sprintf("Bearish price action (%.1f%% over 30d) vs bullish sentiment (%.2f). Contrarian reversal candidate.",
				change30d, polarity),
		}, true
	case change7d > 15 && polarity > 0.65:
		return Signal{
			Type: SignalMomentum,
			Base: 5,
			Reason: fmt.Sprintf("Strong momentum: price up %.1f%% (7d) with positive sentiment (%.2f). Trend continuation play.",
				change7d, polarity),
		}, true
	case polarity > 0.7 && change7d > -10 && change7d < 10:
		return Signal{
			Type: SignalEmergingCatalyst,
			Base: 4,
			Reason: fmt.Sprintf("Sentiment catalyst detected (polarity %.2f) but price relatively flat (%.1f%% over 7d). Early entry before a move.",
				polarity, change7d),
		}, true
	}
	return Signal{}, false
}

// Conviction adds twice the sentiment confidence to base, capped at 10
func Conviction(base, confidence float64) float64 {
	return math.Min(10, base+confidence*2)
}

// TradePlan is the entry, stop, targets and size for a fixed dollar risk
type TradePlan struct {
	Entry         decimal.Decimal
	Stop          decimal.Decimal
	Risk          decimal.Decimal
	Target1       decimal.Decimal
	Target2       decimal.Decimal
	Target3       decimal.Decimal
	Size          int64
	PositionValue int64
	RiskReward    decimal.Decimal
}

// PlanTrade sizes a position so that hitting a 10% stop loses at most maxLoss.
// It fails when entry is not positive or maxLoss does not buy a single unit.
func PlanTrade(entry, maxLoss float64) (TradePlan, bool) {
	e := decimal.NewFromFloat(entry)
	if !e.IsPositive() {
		return TradePlan{}, false
	}

	stop := e.Mul(stopFactor)
	risk := e.Sub(stop)
	if !risk.IsPositive() {
		return TradePlan{}, false
	}

	size := decimal.NewFromFloat(maxLoss).Div(risk).Floor()
	if !size.IsPositive() {
		return TradePlan{}, false
	}

	t1, t2, t3 := e.Mul(target1Factor), e.Mul(target2Factor), e.Mul(target3Factor)
	return TradePlan{
		Entry:         e,
		Stop:          stop,
		Risk:          risk,
		Target1:       t1,
		Target2:       t2,
		Target3:       t3,
		Size:          size.IntPart(),
		PositionValue: size.Mul(e).Floor().IntPart(),
		RiskReward:    t1.Add(t2).Div(two).Sub(e).Div(risk),
	}, true
}
