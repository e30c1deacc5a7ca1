package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// The patients schema ships as an embedded baseline. Every statement in it is
// idempotent, so stores created before version tracking existed (a bare
// patients table and no schema_migrations) are adopted in place.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaFS is the migration source; tests swap it to exercise schema failures.
var schemaFS fs.FS = migrationsFS

// ApplySchema ensures the patients table exists.
func (db *DB) ApplySchema() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Note: m is not closed here because that would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied schema version and dirty state.
// Returns 0, false, nil if the schema has never been applied.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate builds a migrate instance over the embedded schema and the
// store's own connection. Callers must hold db.mu.
func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schema: %w", err)
	}

	driver, err := sqlite.WithInstance(db.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	return m, nil
}

// migrateLogger implements migrate.Logger on top of the package logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
