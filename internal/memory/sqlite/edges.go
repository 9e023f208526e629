package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/memgraph/internal/memory"
)

const edgeColumns = "id, session_id, source_node_id, target_node_id, relation, weight, created_at"

// CreateEdge implements memory.EdgeStore. Endpoint existence and
// same-session checks run in the same transaction as the insert, so a
// failed check persists nothing.
func (g *Graph) CreateEdge(ctx context.Context, in memory.NewEdge) (*memory.Edge, error) {
	rel, err := g.reg.ResolveRelation(string(in.Relation))
	if err != nil {
		return nil, err
	}

	weight := g.reg.DefaultWeight(rel)
	if in.Weight != nil {
		weight = *in.Weight
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("sqlite: edge weight %v outside [0,1]: %w", weight, memory.ErrValidation)
		}
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin edge create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sourceSession, err := nodeSession(ctx, tx, in.SourceNodeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: edge source node %s does not exist: %w", in.SourceNodeID, memory.ErrIntegrity)
	}
	targetSession, err := nodeSession(ctx, tx, in.TargetNodeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: edge target node %s does not exist: %w", in.TargetNodeID, memory.ErrIntegrity)
	}
	if sourceSession != targetSession {
		return nil, fmt.Errorf("sqlite: edge endpoints span sessions %s and %s: %w",
			sourceSession, targetSession, memory.ErrIntegrity)
	}

	edge := &memory.Edge{
		ID:           g.newID(),
		SessionID:    sourceSession,
		SourceNodeID: in.SourceNodeID,
		TargetNodeID: in.TargetNodeID,
		Relation:     rel,
		Weight:       weight,
		CreatedAt:    g.now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (id, session_id, source_node_id, target_node_id, relation, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.SessionID, edge.SourceNodeID, edge.TargetNodeID,
		string(edge.Relation), edge.Weight, edge.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit edge create: %w", err)
	}
	return edge, nil
}

// EdgesForSession implements memory.EdgeStore.
func (g *Graph) EdgesForSession(ctx context.Context, sessionID string, limit int) ([]memory.Edge, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: session edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEdges(rows)
}

// EdgesForNode implements memory.EdgeStore.
func (g *Graph) EdgesForNode(ctx context.Context, nodeID string) ([]memory.Edge, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges
		WHERE source_node_id = ? OR target_node_id = ?
		ORDER BY weight DESC, id`,
		nodeID, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: node edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEdges(rows)
}

// CountEdges implements memory.EdgeStore.
func (g *Graph) CountEdges(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := g.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM edges WHERE session_id = ?", sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count edges: %w", err)
	}
	return count, nil
}

// RepointEdges implements memory.EdgeStore. Each edge of from is either
// moved to to, or deleted when the move would create a self-loop or
// duplicate an existing edge.
func (g *Graph) RepointEdges(ctx context.Context, from, to string) (int, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin repoint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE source_node_id = ? OR target_node_id = ?",
		from, from,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: edges to repoint: %w", err)
	}
	edges, err := scanEdges(rows)
	_ = rows.Close()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, edge := range edges {
		src, tgt := edge.SourceNodeID, edge.TargetNodeID
		if src == from {
			src = to
		}
		if tgt == from {
			tgt = to
		}

		drop := src == tgt
		if !drop {
			var exists int
			err := tx.QueryRowContext(ctx, `
				SELECT 1 FROM edges
				WHERE session_id = ? AND source_node_id = ? AND target_node_id = ? AND relation = ? AND id != ?`,
				edge.SessionID, src, tgt, string(edge.Relation), edge.ID,
			).Scan(&exists)
			switch {
			case err == nil:
				drop = true
			case errors.Is(err, sql.ErrNoRows):
				// No duplicate; the move is safe.
			default:
				return 0, fmt.Errorf("sqlite: duplicate check: %w", err)
			}
		}

		if drop {
			if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE id = ?", edge.ID); err != nil {
				return 0, fmt.Errorf("sqlite: drop unmovable edge: %w", err)
			}
			continue
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE edges SET source_node_id = ?, target_node_id = ? WHERE id = ?",
			src, tgt, edge.ID,
		); err != nil {
			return 0, fmt.Errorf("sqlite: repoint edge: %w", err)
		}
		moved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit repoint: %w", err)
	}
	return moved, nil
}

// DeleteForNodes implements memory.EdgeStore.
func (g *Graph) DeleteForNodes(ctx context.Context, nodeIDs []string) (int, error) {
	if len(nodeIDs) == 0 {
		return 0, nil
	}

	ph := placeholders(len(nodeIDs))
	args := append(toAnySlice(nodeIDs), toAnySlice(nodeIDs)...)

	result, err := g.db.ExecContext(ctx,
		"DELETE FROM edges WHERE source_node_id IN ("+ph+") OR target_node_id IN ("+ph+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete edges for nodes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// nodeSession returns the owning session of a node inside tx.
func nodeSession(ctx context.Context, tx *sql.Tx, nodeID string) (string, error) {
	var sessionID string
	err := tx.QueryRowContext(ctx,
		"SELECT session_id FROM nodes WHERE id = ?", nodeID).Scan(&sessionID)
	return sessionID, err
}

func scanEdges(rows *sql.Rows) ([]memory.Edge, error) {
	var edges []memory.Edge
	for rows.Next() {
		var (
			edge       memory.Edge
			relation   string
			createdStr string
		)
		if err := rows.Scan(
			&edge.ID, &edge.SessionID, &edge.SourceNodeID, &edge.TargetNodeID,
			&relation, &edge.Weight, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan edge: %w", err)
		}
		edge.Relation = memory.Relation(relation)

		created, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse created_at %q: %w", createdStr, err)
		}
		edge.CreatedAt = created

		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: edge rows: %w", err)
	}
	return edges, nil
}
