package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewCreatesDataDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "pulseward.db")
	ctx := context.Background()

	s, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	// Reopening the same path must replay migrations idempotently.
	s2, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("second New() on same path error = %v", err)
	}
	defer func() { _ = s2.Close() }()
}

func TestNewAppliesMigrations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	var n int
	if err := s.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='monitors'",
	).Scan(&n); err != nil {
		t.Fatalf("check monitors table: %v", err)
	}
	if n != 1 {
		t.Fatal("monitors table not created by New()")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(context.Background(), filepath.Join(dir, "pulseward.db"))
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
