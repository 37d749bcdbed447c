package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/interfaces/alerts"
	"github.com/sawpanic/sentirun/internal/scanner"
	"github.com/sawpanic/sentirun/internal/stream"
)

func newScanCmd() *cobra.Command {
	var (
		minConviction float64
		maxResults    int
		outPath       string
		asJSON        bool
		notify        bool
		publish       bool
	)

	cmd := &cobra.Command{
		Use:   "scan [symbols...]",
		Short: "Rank swing trade opportunities from sentiment and price divergence",
		Long: `Aggregates trailing sentiment for each symbol (the configured universe when
none are given), compares it with 7 and 30 day price moves, and prints
reversal, momentum and emerging catalyst setups ranked by conviction.

Examples:
  sentirun scan
  sentirun scan AAPL TSLA NVDA --min-conviction 6
  sentirun scan --notify --out artifacts/scan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := cfg.Scanner.Universe
			if len(args) > 0 {
				symbols = upper(args)
			}
			if !cmd.Flags().Changed("min-conviction") {
				minConviction = cfg.Scanner.MinConviction
			}
			if !cmd.Flags().Changed("max-results") {
				maxResults = cfg.Scanner.MaxResults
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if publish {
					if err := a.enablePublishing(); err != nil {
						return err
					}
				}

				opps, err := a.scanner.Scan(ctx, symbols, minConviction, maxResults)
				if err != nil {
					return err
				}
				deliverScan(ctx, a, opps, outPath, notify)

				if asJSON {
					return printJSON(cmd, opps)
				}
				printOpportunities(cmd, opps, len(symbols))
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&minConviction, "min-conviction", scanner.DefaultMinConviction, "Minimum conviction score (0-10)")
	cmd.Flags().IntVar(&maxResults, "max-results", 20, "Maximum opportunities to return")
	cmd.Flags().StringVar(&outPath, "out", "", "Write prioritized alerts JSON to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output opportunities as JSON")
	cmd.Flags().BoolVar(&notify, "notify", false, "Post results to the Discord webhook")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish opportunities to the Kafka topic")
	return cmd
}

// deliverScan sends scan results to every requested sink. Delivery failures
// are logged; the scan itself already succeeded.
func deliverScan(ctx context.Context, a *app, opps []scanner.Opportunity, outPath string, notify bool) {
	if outPath != "" {
		if err := alerts.NewEmitter().EmitAlertsJSON(outPath, opps); err != nil {
			log.Warn().Err(err).Str("path", outPath).Msg("Failed to write alerts file")
		} else {
			log.Info().Str("path", outPath).Msg("Alerts written")
		}
	}

	if notify {
		discord := a.cfg.Alerts.Discord
		discord.MaxLoss = a.cfg.Scanner.MaxLoss
		n, err := alerts.NewDiscordNotifier(discord, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Discord notifications disabled")
		} else if err := n.NotifyOpportunities(ctx, opps); err != nil {
			log.Warn().Err(err).Msg("Failed to post to Discord")
		}
	}

	for _, opp := range opps {
		if err := a.publish(ctx, stream.KindOpportunity, opp.Symbol, opp); err != nil {
			log.Warn().Err(err).Str("symbol", opp.Symbol).Msg("Failed to publish opportunity")
			return
		}
	}
}

func printOpportunities(cmd *cobra.Command, opps []scanner.Opportunity, scanned int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d symbols, %d opportunities\n\n", scanned, len(opps))
	for i, o := range opps {
		fmt.Fprintf(out, "%2d. %-6s %s %.1f/10 %-16s %s\n", i+1, o.Symbol, alerts.ConvictionBar(o.ConvictionScore), o.ConvictionScore, o.SignalType, o.ReasonText)
		fmt.Fprintf(out, "    sentiment %+.2f (conf %.0f%%)  7d %+.1f%%  30d %+.1f%%\n",
			o.SentimentPolarity, o.SentimentConfidence*100, o.PriceChange7d, o.PriceChange30d)
		fmt.Fprintf(out, "    entry $%.2f  stop $%.2f  targets $%.2f / $%.2f / $%.2f  size %d ($%d)  R/R %.1f\n",
			o.EntryPrice, o.StopLoss, o.Target1, o.Target2, o.Target3, o.PositionSizeUnits, o.PositionValue, o.RiskRewardRatio)
	}
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
