package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"github.com/stemsi/exprep-backend/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect PostgreSQL schema migrations",
}

func init() {
	migrateCmd.PersistentFlags().String("path", "migrations", "Path to migration files")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrated up successfully")
			return nil
		}),
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrated down successfully")
			return nil
		}),
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %d, Dirty: %t\n", version, dirty)
			return nil
		}),
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark the schema as being at version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forced version to %d\n", v)
			return nil
		}),
	})

	rootCmd.AddCommand(migrateCmd)
}

// withMigrator opens the migration source and database before running fn.
func withMigrator(fn func(*cobra.Command, *migrate.Migrate, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		dir, _ := cmd.Flags().GetString("path")

		m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
		defer m.Close()
		return fn(cmd, m, args)
	}
}
