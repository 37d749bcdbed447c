package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/ingest"
	"github.com/sawpanic/sentirun/internal/stream"
)

func newAggregateCmd() *cobra.Command {
	var (
		window  string
		asJSON  bool
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate <symbol-or-company>",
		Short: "Collect, score and aggregate social sentiment for one instrument",
		Long: `Resolves the query to a ticker, fetches recent posts from every configured
source, drops bots and posts without the symbol, scores and stores the rest,
and prints the engagement weighted sentiment for the window.

Examples:
  sentirun aggregate AAPL
  sentirun aggregate "tesla" --window 7d --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if publish {
					if err := a.enablePublishing(); err != nil {
						return err
					}
				}

				result, err := a.orchestrator.Aggregate(ctx, args[0], window)
				if err != nil {
					return err
				}

				if err := a.publish(ctx, stream.KindAggregate, result.Symbol, result); err != nil {
					log.Warn().Err(err).Msg("Failed to publish aggregate")
				}

				if asJSON {
					return printJSON(cmd, result)
				}
				printAggregate(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&window, "window", "24h", "Lookback window as <N>h or <N>d")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish the result to the Kafka topic")
	return cmd
}

func printAggregate(cmd *cobra.Command, r *ingest.AggregateResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s) over %s\n", r.Symbol, r.Instrument.DisplayName, r.Window)
	if r.Note != "" {
		fmt.Fprintf(out, "  note: %s\n", r.Note)
	}
	fmt.Fprintf(out, "  posts found %d, processed %d\n", r.PostsFound, r.PostsProcessed)
	fmt.Fprintf(out, "  weighted sentiment %+.3f, confidence %.2f across %d posts\n",
		r.WeightedSentiment, r.AvgConfidence, r.TotalCount)

	for _, source := range sortedKeys(r.PerSourceCounts) {
		fmt.Fprintf(out, "  %-10s %d\n", source, r.PerSourceCounts[source])
	}
	for _, source := range sortedKeys(r.SourceErrors) {
		fmt.Fprintf(out, "  %-10s unavailable: %s\n", source, r.SourceErrors[source])
	}
	for _, reason := range sortedKeys(r.Dropped) {
		if n := r.Dropped[reason]; n > 0 {
			fmt.Fprintf(out, "  dropped %-14s %d\n", reason, n)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
