package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/germanygsg/taurimedrec/internal/config"
	"github.com/germanygsg/taurimedrec/internal/fsutil"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
	"github.com/germanygsg/taurimedrec/internal/timeutil"
)

// MemoryPath is the DSN of the transient fallback store.
const MemoryPath = ":memory:"

var logf = monitoring.Prefixed("db")

// DB owns the single process-wide connection to the patient store. Every
// repository method holds mu for the duration of its statement, so all store
// access is serialized; reads block other reads.
type DB struct {
	db     *sql.DB
	mu     sync.Mutex
	driver string
	path   string
	clock  timeutil.Clock
	fs     fsutil.FileSystem
}

// Option configures a DB at open time.
type Option func(*DB)

// WithClock sets the clock used for record-number years and backup names.
func WithClock(c timeutil.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithFileSystem sets the filesystem used for backup directories.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(db *DB) { db.fs = fsys }
}

// Open connects to the store at path with the named database/sql driver and
// applies connection pragmas. It does not touch the schema.
//
// The pool is pinned to one connection that is never recycled: SQLite has a
// single writer, and an in-memory store lives only as long as its connection.
func Open(driver, path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	db := &DB{
		db:     sqlDB,
		driver: driver,
		path:   path,
		clock:  timeutil.RealClock{},
		fs:     fsutil.OSFileSystem{},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// NewDB opens the store at path with the default driver and ensures the
// schema exists. Unlike Initialize it never falls back.
func NewDB(path string, opts ...Option) (*DB, error) {
	db, err := Open(config.DriverModernc, path, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.ApplySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Initialize opens the persistent store at path and applies the schema. If
// either step fails it logs the failure and returns a fresh in-memory store
// instead, so the session stays usable even though nothing will persist.
// A schema failure on the fallback store is logged and otherwise ignored;
// later operations will then fail individually.
//
// The only error returned is a failure to open the in-memory store itself.
func Initialize(driver, path string, opts ...Option) (*DB, error) {
	db, err := Open(driver, path, opts...)
	if err == nil {
		if err = db.ApplySchema(); err != nil {
			db.Close()
		}
	}
	if err == nil {
		logf("Database initialized successfully at: %s", path)
		return db, nil
	}

	logf("Failed to open database at %s: %v", path, err)
	logf("Falling back to in-memory database")

	db, err = Open(driver, MemoryPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	if err := db.ApplySchema(); err != nil {
		logf("Failed to create patients table: %v", err)
	}
	return db, nil
}

// Close releases the connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.db.Close()
}

// Path returns the DSN the store was opened with.
func (db *DB) Path() string { return db.path }

// Driver returns the database/sql driver name.
func (db *DB) Driver() string { return db.driver }

// InMemory reports whether this is the transient fallback store.
func (db *DB) InMemory() bool { return db.path == MemoryPath }

// applyPragmas sets the connection configuration. journal_mode reports
// "memory" instead of "wal" for the in-memory store, which is not an error.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
