package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/stream"
)

const dateLayout = "2006-01-02"

func newBacktestCmd() *cobra.Command {
	var (
		strategy     string
		start, end   string
		holdDays     int
		positionSize int
		threshold    float64
		asJSON       bool
		publish      bool
	)

	cmd := &cobra.Command{
		Use:   "backtest <symbols...>",
		Short: "Simulate a strategy over daily price history",
		Long: `Walks daily bars for each symbol, enters when the momentum proxy clears the
threshold and exits on the stop, a target or after the holding period.

Examples:
  sentirun backtest AAPL MSFT --strategy momentum
  sentirun backtest TSLA --start 2024-01-01 --end 2024-12-31 --hold-days 20 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := backtest.Request{
				Symbols:      upper(args),
				Strategy:     strategy,
				HoldDays:     holdDays,
				PositionSize: positionSize,
			}
			if cmd.Flags().Changed("threshold") {
				req.Threshold = backtest.Float(threshold)
			}
			var err error
			if req.Start, err = parseDate(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if req.End, err = parseDate(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			req = cfg.BacktestRequest(req, time.Now().UTC())

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if publish {
					if err := a.enablePublishing(); err != nil {
						return err
					}
				}

				report, err := a.engine.Run(ctx, req)
				if err != nil {
					return err
				}

				if err := a.publish(ctx, stream.KindBacktest, "", report); err != nil {
					log.Warn().Err(err).Msg("Failed to publish backtest report")
				}

				if asJSON {
					return printJSON(cmd, report)
				}
				printReport(cmd, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy (momentum|reversal|catalyst)")
	cmd.Flags().StringVar(&start, "start", "", "First day (YYYY-MM-DD), defaults to one lookback before end")
	cmd.Flags().StringVar(&end, "end", "", "Last day (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVar(&holdDays, "hold-days", 0, "Maximum bars to hold a position")
	cmd.Flags().IntVar(&positionSize, "position-size", 0, "Units bought per trade")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Entry threshold for the proxy signal (0-1)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish the report to the Kafka topic")
	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func printReport(cmd *cobra.Command, r *backtest.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backtest %s: %s %s to %s, hold %d days\n",
		r.RunID, r.Strategy, r.Start.Format(dateLayout), r.End.Format(dateLayout), r.HoldDays)
	if len(r.SkippedSymbols) > 0 {
		fmt.Fprintf(out, "  skipped (no data): %v\n", r.SkippedSymbols)
	}
	if r.Empty {
		fmt.Fprintf(out, "  %s\n", r.Message)
		return
	}

	fmt.Fprintf(out, "  trades %d  wins %d  losses %d  win rate %.2f%%\n",
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRatePct)
	fmt.Fprintf(out, "  avg gain %.2f%%  avg win %.2f%%  avg loss %.2f%%  total profit $%.2f\n",
		r.AvgGainPct, r.AvgWinPct, r.AvgLossPct, r.TotalProfit)
	fmt.Fprintf(out, "  largest win %.2f%%  largest loss %.2f%%  sharpe %.2f  max drawdown %.2f%%\n",
		r.LargestWinPct, r.LargestLossPct, r.SharpeRatio, r.MaxDrawdownPct)

	for _, t := range r.Trades {
		fmt.Fprintf(out, "  %-6s %s $%.2f -> %s $%.2f  %-9s %+.2f%%\n",
			t.Symbol, t.EntryDate.Format(dateLayout), t.EntryPrice, t.ExitDate.Format(dateLayout), t.ExitPrice, t.ExitReason, t.GainPct*100)
	}
}
