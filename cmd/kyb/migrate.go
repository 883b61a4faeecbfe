package main

import (
	"github.com/spf13/cobra"

	"kyb/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and create configured outbox schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db, log); err != nil {
			return err
		}
		for _, schema := range cfg.Relay.Schemas {
			if err := postgres.EnsureOutbox(ctx, db, schema); err != nil {
				return err
			}
		}
		log.InfoContext(ctx, "migrations complete")
		return nil
	},
}
