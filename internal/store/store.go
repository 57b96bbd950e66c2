package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the single SQLite connection shared by the ticker and
// dispatcher processes. SQLite allows exactly one writer at a time, so the
// pool is capped to a single connection and WAL mode is enabled so readers
// never block behind an in-flight write.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if necessary) the SQLite database at dbPath and
// replays any pending migrations against it.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// NewInMemory opens an in-memory database with all migrations applied,
// for tests. The DSN uses SQLite's shared cache, so every Store it
// returns within one process reaches the same database while any of
// them is open.
func NewInMemory(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dbPath: ":memory:"}, nil
}

// DB exposes the underlying connection for accessor files in this package
// and for call sites that need to run ad hoc queries (e.g. the d1c-generated
// query functions).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
