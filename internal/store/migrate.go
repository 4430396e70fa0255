// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	versionsOnce sync.Once
	versions     []uint
	versionsErr  error
)

// migrateIface is the subset of *migrate.Migrate the Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m migrateIface
}

// MigrationURL rewrites a postgres:// or postgresql:// DSN to the pgx5://
// scheme expected by the golang-migrate pgx driver.
func MigrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// NewMigrator connects a Migrator to databaseURL.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "open embedded migrations").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrationURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}

	return &Migrator{m: m}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back to version 0. All auth data is dropped.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps migrates n steps up (n > 0) or down (n < 0).
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the applied version. A fresh database is version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. It is the
// recovery path for a dirty database.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// Pending lists versions newer than the applied one, ascending.
func (m *Migrator) Pending() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "list pending migrations").Wrap(err)
	}
	all, err := availableVersions()
	if err != nil {
		return nil, oops.With("operation", "list pending migrations").Wrap(err)
	}
	return slices.DeleteFunc(all, func(v uint) bool { return v <= current }), nil
}

// Applied lists versions at or below the applied one, ascending.
func (m *Migrator) Applied() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "list applied migrations").Wrap(err)
	}
	if current == 0 {
		return nil, nil
	}
	all, err := availableVersions()
	if err != nil {
		return nil, oops.With("operation", "list applied migrations").Wrap(err)
	}
	return slices.DeleteFunc(all, func(v uint) bool { return v > current }), nil
}

// MigrationName returns the NNNNNN_name stem for version, or "" if no such
// migration is embedded.
func MigrationName(version uint) (string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return "", oops.Code("MIGRATION_READ_FAILED").With("operation", "read migrations dir").Wrap(err)
	}
	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".up.sql") {
			return strings.TrimSuffix(name, ".up.sql"), nil
		}
	}
	return "", nil
}

// availableVersions returns a copy of the embedded versions, ascending.
func availableVersions() ([]uint, error) {
	versionsOnce.Do(func() {
		versions, versionsErr = scanVersions(migrationsFS)
	})
	if versionsErr != nil {
		return nil, versionsErr
	}
	return slices.Clone(versions), nil
}

// scanVersions parses the version prefix of every *.up.sql file. Files that
// don't follow NNNNNN_name.up.sql are logged and skipped.
func scanVersions(fsys fs.FS) ([]uint, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	seen := make(map[uint]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var v uint
		if _, err := fmt.Sscanf(name, "%06d", &v); err != nil {
			slog.Warn("skipping migration with unexpected file name",
				"filename", name,
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		seen[v] = struct{}{}
	}

	out := make([]uint, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out, nil
}
