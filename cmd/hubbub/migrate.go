// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hubbub-social/hubbub/internal/config"
	"github.com/hubbub-social/hubbub/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Applied() ([]uint, error)
	Close() error
}

var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE:  runMigrateUp,
	}
	config.RegisterMigrateFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations, or all of them with --all.
Rolling back drops auth data.`,
		RunE: runMigrateDown,
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE:  runMigrateStatus,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE:  runMigrateVersion,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long:  `Record VERSION as the current schema version and clear the dirty flag. Use it to recover from a failed migration.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateForce,
	})

	return cmd
}

// openMigrator loads the database URL and connects a migrator.
func openMigrator(cmd *cobra.Command) (migrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}
	if err := cfg.Validate(config.RoleMigrate); err != nil {
		return nil, err
	}

	cmd.Println("Connecting to database...")
	m, err := newMigrator(cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrln("warning: closing migrator:", err)
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")    //nolint:errcheck // flag is registered above
	steps, _ := cmd.Flags().GetInt("steps") //nolint:errcheck // flag is registered above
	if !all && steps < 1 {
		return oops.Code("INVALID_STEPS").Errorf("--steps must be at least 1, got %d", steps)
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if all {
		cmd.Println("Rolling back all migrations...")
		err = m.Down()
	} else {
		cmd.Printf("Rolling back %d migration(s)...\n", steps)
		err = m.Steps(-steps)
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}

	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
	}
	applied, err := m.Applied()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "list applied").Wrap(err)
	}
	pending, err := m.Pending()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "list pending").Wrap(err)
	}

	state := "clean"
	if dirty {
		state = "dirty (run 'hubbub migrate force VERSION' after fixing the schema)"
	}
	cmd.Printf("Current version: %d, %s\n", version, state)
	cmd.Printf("Applied: %s\n", formatVersions(applied))
	cmd.Printf("Pending: %s\n", formatVersions(pending))
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
	}
	if dirty {
		cmd.Printf("%d (dirty)\n", version)
		return nil
	}
	cmd.Printf("%d\n", version)
	return nil
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", version).Wrap(err)
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}

func formatVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
