package main

import (
	"context"
	"fmt"
	"time"

	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	var list, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listMigrations()
			}
			return a.withDB(5*time.Minute, func(ctx context.Context, database *db.DB) error {
				if status {
					version, err := database.CurrentVersion(ctx)
					if err != nil {
						return fmt.Errorf("get schema version: %w", err)
					}
					fmt.Printf("Current schema version: %d\n", version)
					return nil
				}

				a.logger.Info().Msg("running database migrations")
				if err := database.Migrate(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				version, err := database.CurrentVersion(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("could not get current version")
					return nil
				}
				a.logger.Info().Int("version", version).Msg("migrations complete")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List all migrations without connecting")
	cmd.Flags().BoolVar(&status, "status", false, "Show the current schema version")
	return cmd
}

func listMigrations() error {
	migrations, err := db.GetMigrations()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(migrations) == 0 {
		fmt.Println("No migrations found")
		return nil
	}
	fmt.Println("Available migrations:")
	for _, m := range migrations {
		fmt.Printf("  %03d: %s\n", m.Version, m.Name)
	}
	return nil
}
