package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/memgraph/internal/embedding"
)

// InMemoryGraph is a concurrency-safe, in-memory implementation of both
// NodeStore and EdgeStore backed by a single mutex, which gives per-session
// monotonic write order and read-your-writes for free. The `now` and `newID`
// functions are injectable for deterministic testing.
type InMemoryGraph struct {
	mu    sync.RWMutex
	reg   *Registry
	nodes map[string]*Node
	edges map[string]*Edge

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time

	// newID is injectable for testing. Defaults to time-ordered UUIDs so
	// that ID order follows creation order.
	newID func() string
}

// Compile-time interface checks.
var (
	_ NodeStore = (*InMemoryGraph)(nil)
	_ EdgeStore = (*InMemoryGraph)(nil)
)

// GraphOption customises an InMemoryGraph.
type GraphOption func(*InMemoryGraph)

// WithClock replaces the graph's clock, for deterministic tests.
func WithClock(now func() time.Time) GraphOption {
	return func(g *InMemoryGraph) { g.now = now }
}

// WithIDGenerator replaces the graph's ID generator. The default produces
// time-ordered UUIDs; replacements must keep IDs unique.
func WithIDGenerator(newID func() string) GraphOption {
	return func(g *InMemoryGraph) { g.newID = newID }
}

// NewInMemoryGraph creates an empty graph validating against reg.
func NewInMemoryGraph(reg *Registry, opts ...GraphOption) *InMemoryGraph {
	g := &InMemoryGraph{
		reg:   reg,
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateNode implements NodeStore.
func (g *InMemoryGraph) CreateNode(_ context.Context, in NewNode) (*Node, error) {
	cat, importance, err := ValidateNewNode(g.reg, in)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	node := &Node{
		ID:         g.newID(),
		SessionID:  in.SessionID,
		Category:   cat,
		Summary:    in.Summary,
		Payload:    in.Payload,
		Importance: importance,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	g.nodes[node.ID] = node

	return cloneNode(node), nil
}

// GetNode implements NodeStore.
func (g *InMemoryGraph) GetNode(_ context.Context, id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("memory: node %s: %w", id, ErrNotFound)
	}
	return cloneNode(node), nil
}

// TouchNode implements NodeStore.
func (g *InMemoryGraph) TouchNode(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("memory: touch node %s: %w", id, ErrNotFound)
	}
	node.LastSeenAt = g.now().UTC()
	return nil
}

// GetRecent implements NodeStore.
func (g *InMemoryGraph) GetRecent(_ context.Context, sessionID string, limit int) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.sessionNodesLocked(sessionID)
	sortRecent(nodes)

	if limit >= 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

// NodesForSession implements NodeStore.
func (g *InMemoryGraph) NodesForSession(_ context.Context, sessionID string) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessionNodesLocked(sessionID), nil
}

// CountNodes implements NodeStore.
func (g *InMemoryGraph) CountNodes(_ context.Context, sessionID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, node := range g.nodes {
		if node.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// Sessions implements NodeStore.
func (g *InMemoryGraph) Sessions(_ context.Context, minNodes int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[string]int)
	for _, node := range g.nodes {
		counts[node.SessionID]++
	}

	var sessions []string
	for id, n := range counts {
		if n >= minNodes {
			sessions = append(sessions, id)
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

// UpdateImportance implements NodeStore.
func (g *InMemoryGraph) UpdateImportance(_ context.Context, id string, importance float64) error {
	if importance < 0 || importance > 1 {
		return fmt.Errorf("memory: importance %v outside [0,1]: %w", importance, ErrValidation)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("memory: update importance of node %s: %w", id, ErrNotFound)
	}
	node.Importance = importance
	return nil
}

// SetEmbedding implements NodeStore.
func (g *InMemoryGraph) SetEmbedding(_ context.Context, id string, vec embedding.Vector) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("memory: set embedding of node %s: %w", id, ErrNotFound)
	}
	node.Embedding = append(embedding.Vector(nil), vec...)
	return nil
}

// MissingEmbeddings implements NodeStore.
func (g *InMemoryGraph) MissingEmbeddings(_ context.Context, limit int) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var nodes []Node
	for _, node := range g.nodes {
		if node.Embedding == nil {
			nodes = append(nodes, *cloneNode(node))
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	if limit >= 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

// DeleteNodes implements NodeStore.
func (g *InMemoryGraph) DeleteNodes(_ context.Context, ids []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := g.nodes[id]; ok {
			delete(g.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteForSession implements NodeStore. The single lock makes the cascade
// atomic: either the whole session disappears or none of it does.
func (g *InMemoryGraph) DeleteForSession(_ context.Context, sessionID string) (int, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodesDeleted := 0
	for id, node := range g.nodes {
		if node.SessionID == sessionID {
			delete(g.nodes, id)
			nodesDeleted++
		}
	}

	edgesDeleted := 0
	for id, edge := range g.edges {
		if edge.SessionID == sessionID {
			delete(g.edges, id)
			edgesDeleted++
		}
	}

	return nodesDeleted, edgesDeleted, nil
}

// CreateEdge implements EdgeStore.
func (g *InMemoryGraph) CreateEdge(_ context.Context, in NewEdge) (*Edge, error) {
	rel, err := g.reg.ResolveRelation(string(in.Relation))
	if err != nil {
		return nil, err
	}

	weight := g.reg.DefaultWeight(rel)
	if in.Weight != nil {
		weight = *in.Weight
		if weight < 0 || weight > 1 {
			return nil, fmt.Errorf("memory: edge weight %v outside [0,1]: %w", weight, ErrValidation)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	source, ok := g.nodes[in.SourceNodeID]
	if !ok {
		return nil, fmt.Errorf("memory: edge source node %s does not exist: %w", in.SourceNodeID, ErrIntegrity)
	}
	target, ok := g.nodes[in.TargetNodeID]
	if !ok {
		return nil, fmt.Errorf("memory: edge target node %s does not exist: %w", in.TargetNodeID, ErrIntegrity)
	}
	if source.SessionID != target.SessionID {
		return nil, fmt.Errorf("memory: edge endpoints span sessions %s and %s: %w",
			source.SessionID, target.SessionID, ErrIntegrity)
	}

	edge := &Edge{
		ID:           g.newID(),
		SessionID:    source.SessionID,
		SourceNodeID: in.SourceNodeID,
		TargetNodeID: in.TargetNodeID,
		Relation:     rel,
		Weight:       weight,
		CreatedAt:    g.now().UTC(),
	}
	g.edges[edge.ID] = edge

	out := *edge
	return &out, nil
}

// EdgesForSession implements EdgeStore.
func (g *InMemoryGraph) EdgesForSession(_ context.Context, sessionID string, limit int) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge
	for _, edge := range g.edges {
		if edge.SessionID == sessionID {
			edges = append(edges, *edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return edges[i].ID > edges[j].ID
	})

	if limit >= 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}

// EdgesForNode implements EdgeStore.
func (g *InMemoryGraph) EdgesForNode(_ context.Context, nodeID string) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge
	for _, edge := range g.edges {
		if edge.SourceNodeID == nodeID || edge.TargetNodeID == nodeID {
			edges = append(edges, *edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	return edges, nil
}

// CountEdges implements EdgeStore.
func (g *InMemoryGraph) CountEdges(_ context.Context, sessionID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, edge := range g.edges {
		if edge.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// RepointEdges implements EdgeStore.
func (g *InMemoryGraph) RepointEdges(_ context.Context, from, to string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	moved := 0
	for id, edge := range g.edges {
		if edge.SourceNodeID != from && edge.TargetNodeID != from {
			continue
		}

		src, tgt := edge.SourceNodeID, edge.TargetNodeID
		if src == from {
			src = to
		}
		if tgt == from {
			tgt = to
		}

		// Fail closed: drop rather than create a self-loop or duplicate.
		if src == tgt || g.duplicateLocked(id, edge.SessionID, src, tgt, edge.Relation) {
			delete(g.edges, id)
			continue
		}

		edge.SourceNodeID = src
		edge.TargetNodeID = tgt
		moved++
	}
	return moved, nil
}

// duplicateLocked reports whether another edge with the same endpoints and
// relation already exists.
func (g *InMemoryGraph) duplicateLocked(exceptID, sessionID, src, tgt string, rel Relation) bool {
	for id, edge := range g.edges {
		if id == exceptID {
			continue
		}
		if edge.SessionID == sessionID && edge.SourceNodeID == src && edge.TargetNodeID == tgt && edge.Relation == rel {
			return true
		}
	}
	return false
}

// DeleteForNodes implements EdgeStore.
func (g *InMemoryGraph) DeleteForNodes(_ context.Context, nodeIDs []string) (int, error) {
	targets := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		targets[id] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	deleted := 0
	for id, edge := range g.edges {
		if _, ok := targets[edge.SourceNodeID]; ok {
			delete(g.edges, id)
			deleted++
			continue
		}
		if _, ok := targets[edge.TargetNodeID]; ok {
			delete(g.edges, id)
			deleted++
		}
	}
	return deleted, nil
}

// sessionNodesLocked returns value copies of a session's nodes.
func (g *InMemoryGraph) sessionNodesLocked(sessionID string) []Node {
	var nodes []Node
	for _, node := range g.nodes {
		if node.SessionID == sessionID {
			nodes = append(nodes, *cloneNode(node))
		}
	}
	return nodes
}

// sortRecent orders nodes most recently seen first, ties by ID descending so
// the later-created node wins.
func sortRecent(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].LastSeenAt.Equal(nodes[j].LastSeenAt) {
			return nodes[i].LastSeenAt.After(nodes[j].LastSeenAt)
		}
		return nodes[i].ID > nodes[j].ID
	})
}

// cloneNode copies a node so callers cannot mutate store state.
func cloneNode(n *Node) *Node {
	out := *n
	if n.Payload != nil {
		out.Payload = make(map[string]any, len(n.Payload))
		for k, v := range n.Payload {
			out.Payload[k] = v
		}
	}
	if n.Embedding != nil {
		out.Embedding = append(embedding.Vector(nil), n.Embedding...)
	}
	return &out
}
