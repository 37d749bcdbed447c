package backtest

import (
	"fmt"
	"time"

	"github.com/sawpanic/sentirun/internal/social"
)

// Exit reasons
const (
	ExitStopLoss = "stop_loss"
	ExitTarget1  = "target_1"
	ExitTarget2  = "target_2"
	ExitTarget3  = "target_3"
	ExitTimeout  = "timeout"
)

// Strategies accepted by the engine. Only momentum changes the entry proxy.
const (
	StrategyMomentum = "momentum"
	StrategyReversal = "reversal"
	StrategyCatalyst = "catalyst"
)

// Defaults applied to zero request fields
const (
	DefaultHoldDays     = 30
	DefaultPositionSize = 100
	DefaultThreshold    = 0.6
	DefaultLookback     = 365 * 24 * time.Hour

	// ProxyWindow is how far back the entry proxy looks
	ProxyWindow = 30 * 24 * time.Hour

	// proxySlack widens the lead-in fetch so weekends and holidays at the
	// start of the window still leave a bar on or before its cutoff
	proxySlack = 7 * 24 * time.Hour

	// MaxReportedTrades caps Report.Trades
	MaxReportedTrades = 50

	// NoTradesMessage is set on empty reports
	NoTradesMessage = "no trades generated with current parameters"
)

// Request describes one backtest run. A nil Threshold takes the default;
// an explicit 0 enters on every bar.
type Request struct {
	Symbols      []string  `json:"symbols"`
	Strategy     string    `json:"strategy"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	HoldDays     int       `json:"hold_days"`
	PositionSize int       `json:"position_size"`
	Threshold    *float64  `json:"threshold,omitempty"`
}

// Float returns a pointer to v, for Request.Threshold
func Float(v float64) *float64 { return &v }

// EntryThreshold is the effective threshold
func (r Request) EntryThreshold() float64 {
	if r.Threshold == nil {
		return DefaultThreshold
	}
	return *r.Threshold
}

// WithDefaults fills zero fields relative to now
func (r Request) WithDefaults(now time.Time) Request {
	if r.Strategy == "" {
		r.Strategy = StrategyMomentum
	}
	if r.End.IsZero() {
		r.End = now
	}
	if r.Start.IsZero() {
		r.Start = r.End.Add(-DefaultLookback)
	}
	if r.HoldDays == 0 {
		r.HoldDays = DefaultHoldDays
	}
	if r.PositionSize == 0 {
		r.PositionSize = DefaultPositionSize
	}
	if r.Threshold == nil {
		r.Threshold = Float(DefaultThreshold)
	}
	return r
}

// Validate rejects requests that cannot be simulated
func (r Request) Validate() error {
	switch {
	case r.HoldDays <= 0:
		return fmt.Errorf("hold days must be positive, got %d: %w", r.HoldDays, social.ErrInvalidInput)
	case r.PositionSize <= 0:
		return fmt.Errorf("position size must be positive, got %d: %w", r.PositionSize, social.ErrInvalidInput)
	case r.End.Before(r.Start):
		return fmt.Errorf("end %s before start %s: %w", r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"), social.ErrInvalidInput)
	case r.EntryThreshold() < 0 || r.EntryThreshold() > 1:
		return fmt.Errorf("threshold %.2f outside [0,1]: %w", r.EntryThreshold(), social.ErrInvalidInput)
	}
	switch r.Strategy {
	case StrategyMomentum, StrategyReversal, StrategyCatalyst:
		return nil
	}
	return fmt.Errorf("unknown strategy %q: %w", r.Strategy, social.ErrInvalidInput)
}

// Trade is one simulated round trip
type Trade struct {
	Symbol      string    `json:"symbol"`
	EntryDate   time.Time `json:"entry_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitDate    time.Time `json:"exit_date"`
	ExitPrice   float64   `json:"exit_price"`
	ExitReason  string    `json:"exit_reason"`
	GainPct     float64   `json:"gain_pct"`
	ProfitUnits float64   `json:"profit"`
	IsWin       bool      `json:"is_win"`
}

// Report summarizes a run. Percent fields are scaled by 100.
type Report struct {
	RunID          string    `json:"run_id"`
	Strategy       string    `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	SkippedSymbols []string  `json:"skipped_symbols,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	HoldDays       int       `json:"hold_days"`
	PositionSize   int       `json:"position_size"`
	Threshold      float64   `json:"threshold"`

	Stats

	Trades      []Trade   `json:"trades"`
	Empty       bool      `json:"empty"`
	Message     string    `json:"message,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Stats are the aggregate trade statistics
type Stats struct {
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRatePct        float64 `json:"win_rate_pct"`
	AvgWinPct         float64 `json:"avg_win_pct"`
	AvgLossPct        float64 `json:"avg_loss_pct"`
	AvgGainPct        float64 `json:"avg_gain_pct"`
	TotalProfit       float64 `json:"total_profit"`
	LargestWinPct     float64 `json:"largest_win_pct"`
	LargestLossPct    float64 `json:"largest_loss_pct"`
	ProfitFactor      float64 `json:"profit_factor"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}
