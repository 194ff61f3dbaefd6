package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/houseflow/lighthouse/internal/infrastructure/config"
	"github.com/houseflow/lighthouse/internal/infrastructure/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply, roll back or list database migrations",
		Long: `Manage the SQLite schema.

  up      apply all pending migrations (default)
  down    roll back the most recent migration
  status  list applied and pending migrations`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd, opts.resolveConfigPath(), action)
		},
	}
	return cmd
}

func runMigrate(cmd *cobra.Command, configPath, action string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly command

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch action {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "rolled back one migration")
	case "status":
		applied, pending, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		for _, m := range applied {
			fmt.Fprintf(out, "applied  %s\n", m.Version)
		}
		for _, m := range pending {
			fmt.Fprintf(out, "pending  %s_%s\n", m.Version, m.Name)
		}
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}
