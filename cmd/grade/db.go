package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/config"
	"github.com/Veraticus/gradeflow/internal/storage"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the results database",
		Example: `  # Copy the database before clearing old batches
  grade db backup ~/grade-backup.db`,
	}

	cmd.AddCommand(backupCmd())

	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a consistent copy of the SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sqliteStore, ok := store.(*storage.SQLiteStorage)
			if !ok {
				return fmt.Errorf("backup is only supported for the sqlite driver")
			}

			dest, err := filepath.Abs(config.ExpandPath(args[0]))
			if err != nil {
				return fmt.Errorf("failed to resolve destination: %w", err)
			}
			if err := sqliteStore.Backup(ctx, dest); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database copied to "+dest))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on start, so this is only needed to prepare
a database ahead of time or to check its version.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status {
		fmt.Fprintln(out, cli.FormatTitle(cli.ChartIcon+" Database migration status"))
		fmt.Fprintf(out, "Driver:          %s\n", cfg.Database.Driver)
		fmt.Fprintf(out, "Current version: %d\n", current)
		fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
		return nil
	}

	slog.Info("Running database migrations",
		"driver", cfg.Database.Driver,
		"from_version", current)

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database schema at version %d", storage.ExpectedSchemaVersion)))
	return nil
}
