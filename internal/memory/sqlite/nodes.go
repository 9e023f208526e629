package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
)

const nodeColumns = "id, session_id, category, summary, payload, importance, created_at, last_seen_at, embedding"

// CreateNode implements memory.NodeStore.
func (g *Graph) CreateNode(ctx context.Context, in memory.NewNode) (*memory.Node, error) {
	cat, importance, err := memory.ValidateNewNode(g.reg, in)
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(orEmpty(in.Payload))
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal payload: %w", err)
	}

	now := g.now().UTC()
	node := &memory.Node{
		ID:         g.newID(),
		SessionID:  in.SessionID,
		Category:   cat,
		Summary:    in.Summary,
		Payload:    in.Payload,
		Importance: importance,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	_, err = g.db.ExecContext(ctx, `
		INSERT INTO nodes (id, session_id, category, summary, payload, importance, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.SessionID, string(node.Category), node.Summary,
		string(payloadJSON), node.Importance,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert node: %w", err)
	}

	return node, nil
}

// GetNode implements memory.NodeStore.
func (g *Graph) GetNode(ctx context.Context, id string) (*memory.Node, error) {
	row := g.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: node %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// TouchNode implements memory.NodeStore.
func (g *Graph) TouchNode(ctx context.Context, id string) error {
	result, err := g.db.ExecContext(ctx,
		"UPDATE nodes SET last_seen_at = ? WHERE id = ?",
		g.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sqlite: touch node: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: touch node %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// GetRecent implements memory.NodeStore.
func (g *Graph) GetRecent(ctx context.Context, sessionID string, limit int) ([]memory.Node, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE session_id = ?
		ORDER BY last_seen_at DESC, id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// NodesForSession implements memory.NodeStore.
func (g *Graph) NodesForSession(ctx context.Context, sessionID string) ([]memory.Node, error) {
	rows, err := g.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: session nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// CountNodes implements memory.NodeStore.
func (g *Graph) CountNodes(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := g.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE session_id = ?", sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count nodes: %w", err)
	}
	return count, nil
}

// Sessions implements memory.NodeStore.
func (g *Graph) Sessions(ctx context.Context, minNodes int) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT session_id FROM nodes
		GROUP BY session_id
		HAVING COUNT(*) >= ?
		ORDER BY session_id`,
		minNodes,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: session rows: %w", err)
	}
	return sessions, nil
}

// UpdateImportance implements memory.NodeStore.
func (g *Graph) UpdateImportance(ctx context.Context, id string, importance float64) error {
	if importance < 0 || importance > 1 {
		return fmt.Errorf("sqlite: importance %v outside [0,1]: %w", importance, memory.ErrValidation)
	}

	result, err := g.db.ExecContext(ctx,
		"UPDATE nodes SET importance = ? WHERE id = ?", importance, id)
	if err != nil {
		return fmt.Errorf("sqlite: update importance: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: update importance of node %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// SetEmbedding implements memory.NodeStore.
func (g *Graph) SetEmbedding(ctx context.Context, id string, vec embedding.Vector) error {
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("sqlite: marshal embedding: %w", err)
	}

	result, err := g.db.ExecContext(ctx,
		"UPDATE nodes SET embedding = ? WHERE id = ?", string(vecJSON), id)
	if err != nil {
		return fmt.Errorf("sqlite: set embedding: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: set embedding of node %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// MissingEmbeddings implements memory.NodeStore.
func (g *Graph) MissingEmbeddings(ctx context.Context, limit int) ([]memory.Node, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: nodes missing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// DeleteNodes implements memory.NodeStore.
func (g *Graph) DeleteNodes(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := "DELETE FROM nodes WHERE id IN (" + placeholders(len(ids)) + ")"
	result, err := g.db.ExecContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete nodes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteForSession implements memory.NodeStore. The node and edge deletions
// run in one transaction so a clear is all-or-nothing.
func (g *Graph) DeleteForSession(ctx context.Context, sessionID string) (int, int, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	edgeResult, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: clear edges: %w", err)
	}
	nodeResult, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: clear nodes: %w", err)
	}

	edges, err := edgeResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	nodes, err := nodeResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("sqlite: commit clear: %w", err)
	}
	return int(nodes), int(edges), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*memory.Node, error) {
	var (
		node          memory.Node
		category      string
		payloadJSON   string
		createdAtStr  string
		lastSeenStr   string
		embeddingJSON sql.NullString
	)

	if err := s.Scan(
		&node.ID, &node.SessionID, &category, &node.Summary,
		&payloadJSON, &node.Importance, &createdAtStr, &lastSeenStr, &embeddingJSON,
	); err != nil {
		return nil, err
	}
	node.Category = memory.Category(category)

	if payloadJSON != "" && payloadJSON != "{}" && payloadJSON != "null" {
		if err := json.Unmarshal([]byte(payloadJSON), &node.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal payload: %w", err)
		}
	}

	var err error
	if node.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("sqlite: parse created_at %q: %w", createdAtStr, err)
	}
	if node.LastSeenAt, err = time.Parse(time.RFC3339Nano, lastSeenStr); err != nil {
		return nil, fmt.Errorf("sqlite: parse last_seen_at %q: %w", lastSeenStr, err)
	}

	if embeddingJSON.Valid && embeddingJSON.String != "" && embeddingJSON.String != "null" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &node.Embedding); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal embedding: %w", err)
		}
	}

	return &node, nil
}

func scanNodes(rows *sql.Rows) ([]memory.Node, error) {
	var nodes []memory.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan node: %w", err)
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: node rows: %w", err)
	}
	return nodes, nil
}

func orEmpty(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
