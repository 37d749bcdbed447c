package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sentirun/internal/config"
	"github.com/sawpanic/sentirun/internal/infrastructure/db"
	"github.com/sawpanic/sentirun/internal/persistence/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply or inspect the PostgreSQL schema migrations",
		Long: `Runs the embedded goose migrations against store.postgres.dsn (DATABASE_URL).
The SQLite backend migrates itself on open and the memory backend has no schema.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			if cfg.Store.Backend != config.BackendPostgres && cfg.Store.Postgres.DSN == "" {
				return fmt.Errorf("migrate requires the postgres backend or DATABASE_URL")
			}

			ctx := cmd.Context()
			m, err := db.NewManager(ctx, cfg.Store.Postgres)
			if err != nil {
				return err
			}
			defer m.Close()

			switch action {
			case "up":
				if err := m.Migrate(ctx); err != nil {
					return err
				}
			case "down":
				if err := postgres.MigrateDown(ctx, m.DB().DB); err != nil {
					return err
				}
			case "status":
			default:
				return fmt.Errorf("unknown migrate action %q", action)
			}

			v, err := postgres.MigrationVersion(ctx, m.DB().DB)
			if err != nil {
				return err
			}
			log.Info().Str("action", action).Int64("version", v).Msg("Schema version")
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
	return cmd
}
