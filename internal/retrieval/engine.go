// Package retrieval ranks session memory for injection into a conversation:
// context retrieval with importance, recency and semantic similarity,
// session summaries, and one-hop graph neighbourhood lookups.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/metrics"
	"github.com/flemzord/memgraph/internal/telemetry"
)

// Config tunes the ranking behaviour.
type Config struct {
	// HalfLife is the recency half-life: a node untouched for exactly this
	// long scores half its importance.
	HalfLife time.Duration `yaml:"half_life"`

	// SimilarityTimeout bounds the semantic scoring phase. When exceeded,
	// retrieval falls back to importance and recency alone.
	SimilarityTimeout time.Duration `yaml:"similarity_timeout"`

	// DefaultLimit applies when a caller passes limit <= 0.
	DefaultLimit int `yaml:"default_limit"`
}

// Defaults fills zero fields.
func (c Config) Defaults() Config {
	if c.HalfLife <= 0 {
		c.HalfLife = 7 * 24 * time.Hour
	}
	if c.SimilarityTimeout <= 0 {
		c.SimilarityTimeout = 200 * time.Millisecond
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	return c
}

// summaryRecentLimit caps the recent nodes and edges in a session summary.
const summaryRecentLimit = 25

// Engine is the read surface of the memory graph.
type Engine struct {
	nodes   memory.NodeStore
	edges   memory.EdgeStore
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewEngine creates an engine. logger and m may be nil.
func NewEngine(nodes memory.NodeStore, edges memory.EdgeStore, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		nodes:   nodes,
		edges:   edges,
		cfg:     cfg.Defaults(),
		logger:  logger,
		metrics: m,
		tracer:  telemetry.Tracer("memgraph/retrieval"),
		now:     time.Now,
	}
}

// ScoredNode pairs a node with the score it ranked under.
type ScoredNode struct {
	memory.Node
	Score float64 `json:"score"`
}

// RetrieveContext returns the session's most relevant nodes for a query
// embedding, ranked by importance x recency x similarity. A nil query, or a
// similarity phase that exceeds its budget, degrades to importance x recency.
// Returned nodes have their last-seen time refreshed. An unknown session is
// an empty result.
func (e *Engine) RetrieveContext(ctx context.Context, sessionID string, query embedding.Vector, limit int) ([]ScoredNode, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("retrieval: session id is required: %w", memory.ErrValidation)
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	e.metrics.IncRetrieval()

	ctx, span := e.tracer.Start(ctx, "retrieve_context", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("semantic", len(query) > 0),
	))
	defer span.End()

	nodes, err := e.nodes.NodesForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load session %s: %w", sessionID, err)
	}
	if len(nodes) == 0 {
		return []ScoredNode{}, nil
	}

	now := e.now().UTC()
	scored := make([]ScoredNode, len(nodes))
	for i := range nodes {
		scored[i] = ScoredNode{
			Node:  nodes[i],
			Score: nodes[i].Importance * e.recency(now, nodes[i].LastSeenAt),
		}
	}

	if len(query) > 0 {
		e.applySimilarity(ctx, sessionID, scored, query)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Importance != scored[j].Importance {
			return scored[i].Importance > scored[j].Importance
		}
		if !scored[i].LastSeenAt.Equal(scored[j].LastSeenAt) {
			return scored[i].LastSeenAt.After(scored[j].LastSeenAt)
		}
		return scored[i].ID > scored[j].ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	e.touch(ctx, scored)
	return scored, nil
}

// applySimilarity folds cosine similarity into the scores under a time
// budget. On timeout or a malformed embedding the base scores stand and the
// fallback is counted.
func (e *Engine) applySimilarity(ctx context.Context, sessionID string, scored []ScoredNode, query embedding.Vector) {
	simCtx, cancel := context.WithTimeout(ctx, e.cfg.SimilarityTimeout)
	defer cancel()

	sims := make([]float64, len(scored))
	for i := range scored {
		if simCtx.Err() != nil {
			e.metrics.IncRetrievalFallback()
			e.logger.Warn("similarity scoring timed out, using importance-recency only",
				"session", sessionID, "scored", i, "total", len(scored))
			return
		}

		if len(scored[i].Embedding) == 0 {
			// Unembedded nodes keep their base score at full similarity so
			// fresh writes are not penalised before the backfill runs.
			sims[i] = 1
			continue
		}
		sim, err := embedding.Cosine(query, scored[i].Embedding)
		if err != nil {
			e.metrics.IncRetrievalFallback()
			e.logger.Warn("similarity scoring failed, using importance-recency only",
				"session", sessionID, "node", scored[i].ID, "error", err)
			return
		}
		// Negative similarity clamps to zero: anticorrelated memories are
		// irrelevant, not negatively relevant.
		sims[i] = math.Max(sim, 0)
	}

	for i := range scored {
		scored[i].Score *= sims[i]
	}
}

// recency is an exponential decay over time since last seen, 1.0 at zero age
// and 0.5 at one half-life.
func (e *Engine) recency(now, lastSeen time.Time) float64 {
	age := now.Sub(lastSeen)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(e.cfg.HalfLife))
}

// touch refreshes last-seen on retrieved nodes. Failures are logged, not
// surfaced: the retrieval itself already succeeded.
func (e *Engine) touch(ctx context.Context, scored []ScoredNode) {
	for i := range scored {
		if err := e.nodes.TouchNode(ctx, scored[i].ID); err != nil {
			e.logger.Warn("touch after retrieval failed", "node", scored[i].ID, "error", err)
		}
	}
}

// Summary is a compact view of a session's memory.
type Summary struct {
	SessionID   string        `json:"session_id"`
	NodeCount   int           `json:"node_count"`
	EdgeCount   int           `json:"edge_count"`
	RecentNodes []memory.Node `json:"recent_nodes"`
	RecentEdges []memory.Edge `json:"recent_edges"`
}

// SessionSummary returns counts and the most recent nodes and edges of a
// session. An unknown session yields an empty summary.
func (e *Engine) SessionSummary(ctx context.Context, sessionID string) (Summary, error) {
	if sessionID == "" {
		return Summary{}, fmt.Errorf("retrieval: session id is required: %w", memory.ErrValidation)
	}

	nodeCount, err := e.nodes.CountNodes(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("retrieval: count nodes for %s: %w", sessionID, err)
	}
	edgeCount, err := e.edges.CountEdges(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("retrieval: count edges for %s: %w", sessionID, err)
	}

	recentNodes, err := e.nodes.GetRecent(ctx, sessionID, summaryRecentLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("retrieval: recent nodes for %s: %w", sessionID, err)
	}
	recentEdges, err := e.edges.EdgesForSession(ctx, sessionID, summaryRecentLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("retrieval: recent edges for %s: %w", sessionID, err)
	}

	return Summary{
		SessionID:   sessionID,
		NodeCount:   nodeCount,
		EdgeCount:   edgeCount,
		RecentNodes: recentNodes,
		RecentEdges: recentEdges,
	}, nil
}

// Related is a neighbour of a node together with the edge that connects it.
type Related struct {
	Node memory.Node `json:"node"`
	Edge memory.Edge `json:"edge"`
}

// FindRelated returns the one-hop neighbourhood of a node, strongest edges
// first. relation narrows to a single relation when non-empty; it may be an
// alias. The anchor node must exist.
func (e *Engine) FindRelated(ctx context.Context, nodeID string, relation string, limit int) ([]Related, error) {
	if _, err := e.nodes.GetNode(ctx, nodeID); err != nil {
		return nil, fmt.Errorf("retrieval: related to %s: %w", nodeID, err)
	}

	var filter memory.Relation
	if relation != "" {
		filter = memory.Relation(relation)
		if !filter.Known() {
			return nil, fmt.Errorf("retrieval: unknown relation %q: %w", relation, memory.ErrValidation)
		}
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	edges, err := e.edges.EdgesForNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: edges of %s: %w", nodeID, err)
	}

	seen := make(map[string]bool)
	related := make([]Related, 0, len(edges))
	for _, edge := range edges {
		if filter != "" && edge.Relation != filter {
			continue
		}
		otherID := edge.TargetNodeID
		if otherID == nodeID {
			otherID = edge.SourceNodeID
		}
		if seen[otherID] {
			continue
		}

		node, err := e.nodes.GetNode(ctx, otherID)
		if err != nil {
			// An edge pointing at a vanished node is a graph integrity
			// breach, not a retrieval miss.
			return nil, fmt.Errorf("retrieval: edge %s endpoint %s: %w", edge.ID, otherID, memory.ErrIntegrity)
		}
		seen[otherID] = true
		related = append(related, Related{Node: *node, Edge: edge})
		if len(related) == limit {
			break
		}
	}
	return related, nil
}
