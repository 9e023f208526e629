// Package sqlite implements the durable NodeStore and EdgeStore backed by a
// single SQLite database. It uses modernc.org/sqlite (pure Go, no CGO) with
// WAL mode and a single write connection, which serialises writes and gives
// per-session monotonic write order.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/memgraph/internal/memory"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Graph is the SQLite-backed memory graph store.
type Graph struct {
	db     *sql.DB
	reg    *memory.Registry
	logger *slog.Logger

	// now and newID are injectable for deterministic testing.
	now   func() time.Time
	newID func() string
}

// Compile-time interface guards.
var (
	_ memory.NodeStore = (*Graph)(nil)
	_ memory.EdgeStore = (*Graph)(nil)
)

// Open opens (creating if needed) the database at path and migrates the
// schema. The caller owns the returned Graph and must Close it.
func Open(path string, cfg Config, reg *memory.Registry, logger *slog.Logger) (*Graph, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// SQLite serialises writes; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Graph{
		db:     db,
		reg:    reg,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}, nil
}

// Close releases the underlying database.
func (g *Graph) Close() error {
	return g.db.Close()
}
