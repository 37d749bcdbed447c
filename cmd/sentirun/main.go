package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/sentirun/internal/config"
	slog "github.com/sawpanic/sentirun/internal/log"
)

const (
	appName = "sentirun"
	version = "v0.3.0"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Social sentiment aggregation, swing trade scanning and backtesting",
		Version: version,
		Long: `sentirun collects stock mentions from Reddit, X, StockTwits and Discord,
scores their sentiment, and turns the trailing aggregate into ranked swing
trade opportunities and strategy backtests.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.SetGlobalNormalizationFunc(dashFlags)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (auto|console|json), overrides config")

	rootCmd.AddCommand(
		newAggregateCmd(),
		newScanCmd(),
		newBacktestCmd(),
		newAnalyzeCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newHealthCmd(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if logFormat != "" {
		loaded.Log.Format = slog.Format(logFormat)
	}
	if err := slog.Setup(loaded.Log.Level, loaded.Log.Format); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// dashFlags accepts --max_results as --max-results
func dashFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// withApp builds the shared services, runs fn, and closes them afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resources")
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
