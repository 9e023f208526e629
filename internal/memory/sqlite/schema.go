package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Both tables are
// append-mostly and keyed by session.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		category     TEXT NOT NULL,
		summary      TEXT NOT NULL,
		payload      TEXT NOT NULL DEFAULT '{}',
		importance   REAL NOT NULL,
		created_at   TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		embedding    TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_nodes_session_seen
		ON nodes(session_id, last_seen_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS edges (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		source_node_id TEXT NOT NULL,
		target_node_id TEXT NOT NULL,
		relation       TEXT NOT NULL,
		weight         REAL NOT NULL,
		created_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_edges_session ON edges(session_id, created_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_node_id)`,

	`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_node_id)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema statement %d: %w", i, err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
