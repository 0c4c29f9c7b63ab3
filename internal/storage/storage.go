// Package storage provides the SQLite-backed city dataset store.
//
// The database holds only the static city congestion dataset; run
// state is deliberately in-memory (see internal/run) and never
// persisted.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// DB wraps the SQLite handle.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path.
// Use ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// The dataset is tiny and read-mostly; a single connection avoids
	// SQLite writer contention and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}
	return &DB{sql: db, logger: logger}, nil
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies the database is reachable, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}
