package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/sentirun/internal/backtest"
	api "github.com/sawpanic/sentirun/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API and the scheduled notification scan",
		Long: `Serves /health, /metrics, /v1/sentiment/{query}, /v1/scan and /v1/backtest.
When a Discord webhook is configured the universe is also scanned every
alerts.scan_interval and the results posted to the channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg := cfg.Server
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				server := api.NewServer(serverCfg, api.Deps{
					Aggregator:   a.orchestrator,
					Scanner:      a.scanner,
					Backtester:   backtesterWithDefaults{a},
					Store:        a.store,
					StoreBackend: a.cfg.Store.Backend,
					Guards:       a.guards,
					Upstream:     a.client,
					Metrics:      a.metrics,
					Universe:     a.cfg.Scanner.Universe,
					Version:      version,
				})

				g, gctx := errgroup.WithContext(ctx)
				g.Go(server.Start)
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return server.Shutdown(shutdownCtx)
				})
				if a.cfg.Alerts.Discord.WebhookURL != "" && a.cfg.Alerts.ScanInterval > 0 {
					g.Go(func() error {
						runScheduledScans(gctx, a, a.cfg.Alerts.ScanInterval)
						return nil
					})
				}
				return g.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP listen port")
	return cmd
}

// runScheduledScans scans the universe and notifies Discord every interval
// until ctx is cancelled
func runScheduledScans(ctx context.Context, a *app, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("Scheduled scan enabled")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opps, err := a.scanner.Scan(ctx, a.cfg.Scanner.Universe, a.cfg.Scanner.MinConviction, a.cfg.Scanner.MaxResults)
			if err != nil {
				log.Error().Err(err).Msg("Scheduled scan failed")
				continue
			}
			deliverScan(ctx, a, opps, "", true)
		}
	}
}

// backtesterWithDefaults fills API requests from the backtest config section
type backtesterWithDefaults struct {
	a *app
}

func (b backtesterWithDefaults) Run(ctx context.Context, req backtest.Request) (*backtest.Report, error) {
	return b.a.engine.Run(ctx, b.a.cfg.BacktestRequest(req, time.Now().UTC()))
}
