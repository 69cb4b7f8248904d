package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/media-pipeline/internal/platform/postgres"
	"github.com/spf13/cobra"
)

var errMigrateDriver = errors.New("migrations require the postgres database driver")

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|reset|status|version]",
		Short: "Manage the database schema",
		ValidArgs: []string{
			postgres.MigrateUp,
			postgres.MigrateDown,
			postgres.MigrateReset,
			postgres.MigrateStatus,
			postgres.MigrateVersion,
		},
		Args: cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), ctx, args[0])
		},
	}
}

func runMigrate(ctx context.Context, cc *commandContext, command string) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return errMigrateDriver
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			cc.logger.Error("failed to close database connection", "error", err)
		}
	}()

	if err := postgres.Migrate(ctx, db, command, cc.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
