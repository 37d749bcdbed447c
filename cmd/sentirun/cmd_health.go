package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/persistence"
)

func newHealthCmd() *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check store and cache connectivity",
		Long: `Pings the configured store backend and, when configured, redis.

Examples:
  sentirun health
  sentirun health --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				checks := a.health(ctx)
				if asJSON {
					if err := printJSON(cmd, checks); err != nil {
						return err
					}
				} else {
					printHealth(cmd, checks)
				}

				for name, c := range checks {
					if !c.Healthy {
						return fmt.Errorf("%s is unhealthy", name)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output health status as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Health check timeout")
	return cmd
}

func printHealth(cmd *cobra.Command, checks map[string]persistence.HealthCheck) {
	out := cmd.OutOrStdout()
	for _, name := range sortedKeys(checks) {
		c := checks[name]
		status := "HEALTHY"
		if !c.Healthy {
			status = "UNHEALTHY"
		}
		fmt.Fprintf(out, "%-6s %-9s %-9s %dms\n", name, c.Backend, status, c.ResponseTimeMS)
		for _, e := range c.Errors {
			fmt.Fprintf(out, "       %s\n", e)
		}
	}
}
