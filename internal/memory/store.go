package memory

import (
	"context"
	"fmt"

	"github.com/flemzord/memgraph/internal/embedding"
)

// NodeStore is durable storage for memory nodes.
// Implementations must be safe for concurrent use and must apply writes from
// the same session in the order received (read-your-writes once a call
// returns).
type NodeStore interface {
	// CreateNode validates the input against the registry and persists a new
	// node. An omitted importance uses the category default; an explicit one
	// outside [0,1] fails with ErrValidation.
	CreateNode(ctx context.Context, in NewNode) (*Node, error)

	// GetNode returns a node by ID, or ErrNotFound.
	GetNode(ctx context.Context, id string) (*Node, error)

	// TouchNode refreshes the node's last-seen timestamp. Category,
	// importance, and ID are never changed. Missing nodes are ErrNotFound.
	TouchNode(ctx context.Context, id string) error

	// GetRecent returns up to limit nodes for the session, most recently
	// seen first, ties broken by ID descending. An unknown session yields an
	// empty result, not an error.
	GetRecent(ctx context.Context, sessionID string, limit int) ([]Node, error)

	// NodesForSession returns all nodes of a session in no particular order.
	NodesForSession(ctx context.Context, sessionID string) ([]Node, error)

	// CountNodes returns the number of nodes in a session.
	CountNodes(ctx context.Context, sessionID string) (int, error)

	// Sessions lists session IDs holding at least minNodes nodes.
	Sessions(ctx context.Context, minNodes int) ([]string, error)

	// UpdateImportance sets a node's importance. Used by the consolidation
	// decay pass; the value must already respect the category floor.
	UpdateImportance(ctx context.Context, id string, importance float64) error

	// SetEmbedding backfills a node's embedding vector.
	SetEmbedding(ctx context.Context, id string, vec embedding.Vector) error

	// MissingEmbeddings returns up to limit nodes without an embedding.
	MissingEmbeddings(ctx context.Context, limit int) ([]Node, error)

	// DeleteNodes removes the given nodes and returns how many existed.
	// Callers repoint or delete their edges first.
	DeleteNodes(ctx context.Context, ids []string) (int, error)

	// DeleteForSession atomically removes all nodes and edges of a session
	// and returns both counts. Other sessions are unaffected.
	DeleteForSession(ctx context.Context, sessionID string) (nodesDeleted, edgesDeleted int, err error)
}

// EdgeStore is durable storage for relationship edges.
type EdgeStore interface {
	// CreateEdge persists a directed edge between two existing nodes of the
	// same session. A missing or cross-session endpoint fails with
	// ErrIntegrity and nothing is persisted. An omitted weight uses the
	// relation default.
	CreateEdge(ctx context.Context, in NewEdge) (*Edge, error)

	// EdgesForSession returns up to limit edges, newest first.
	EdgesForSession(ctx context.Context, sessionID string, limit int) ([]Edge, error)

	// EdgesForNode returns every edge touching the node, either direction.
	EdgesForNode(ctx context.Context, nodeID string) ([]Edge, error)

	// CountEdges returns the number of edges in a session.
	CountEdges(ctx context.Context, sessionID string) (int, error)

	// RepointEdges rewrites edges of from so they attach to to instead,
	// returning how many were moved. Any repoint that would produce a
	// self-loop or duplicate an existing edge is skipped (the edge is
	// deleted rather than moved).
	RepointEdges(ctx context.Context, from, to string) (int, error)

	// DeleteForNodes removes every edge touching any of the given nodes and
	// returns the count.
	DeleteForNodes(ctx context.Context, nodeIDs []string) (int, error)
}

// ValidateNewNode resolves the category, checks required payload fields, and
// picks the effective importance. Shared by store implementations so all
// enforce identical rules.
func ValidateNewNode(reg *Registry, in NewNode) (Category, float64, error) {
	if in.SessionID == "" {
		return "", 0, fmt.Errorf("memory: session id is required: %w", ErrValidation)
	}
	if in.Summary == "" {
		return "", 0, fmt.Errorf("memory: summary is required: %w", ErrValidation)
	}

	cat, err := reg.ResolveCategory(in.Category)
	if err != nil {
		return "", 0, err
	}

	if err := reg.ValidatePayload(cat, in.Payload); err != nil {
		return "", 0, err
	}

	importance := reg.DefaultImportance(cat)
	if in.Importance != nil {
		importance = *in.Importance
		if importance < 0 || importance > 1 {
			return "", 0, fmt.Errorf("memory: importance %v outside [0,1]: %w", importance, ErrValidation)
		}
	}

	return cat, importance, nil
}
