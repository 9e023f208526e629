package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
)

type fakeTime struct {
	mu      sync.Mutex
	current time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func newTestGraph(t *testing.T) (*Graph, *fakeTime) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memgraph.db")
	g, err := Open(path, Config{}, memory.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	ft := &fakeTime{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	g.now = ft.Now

	var seq int
	var mu sync.Mutex
	g.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return g, ft
}

func mustCreate(t *testing.T, g *Graph, in memory.NewNode) *memory.Node {
	t.Helper()
	node, err := g.CreateNode(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	return node
}

func TestGraph_CreateAndGetNode(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	node := mustCreate(t, g, memory.NewNode{
		SessionID: "s1",
		Category:  "goal",
		Summary:   "Close deal on property 5",
		Payload:   map[string]any{"property_id": "5", "priority": "critical"},
	})
	if node.Importance != 1.0 {
		t.Errorf("importance = %v, want 1.0", node.Importance)
	}

	got, err := g.GetNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Category != memory.CategoryGoal || got.Summary != node.Summary {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Payload["property_id"] != "5" {
		t.Errorf("payload round-trip lost property_id: %v", got.Payload)
	}
	if !got.CreatedAt.Equal(node.CreatedAt) || !got.LastSeenAt.Equal(node.LastSeenAt) {
		t.Errorf("timestamps drifted through persistence: %+v vs %+v", got, node)
	}

	if _, err := g.GetNode(ctx, "ghost"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing node error = %v, want ErrNotFound", err)
	}
}

func TestGraph_GetRecentOrdering(t *testing.T) {
	t.Parallel()

	g, ft := newTestGraph(t)
	ctx := context.Background()

	a := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "a"})
	ft.Advance(time.Minute)
	b := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "b"})
	c := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "c"})

	got, err := g.GetRecent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetRecent returned %d, want 2", len(got))
	}
	if got[0].ID != c.ID || got[1].ID != b.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, c.ID, b.ID)
	}

	ft.Advance(time.Minute)
	if err := g.TouchNode(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = g.GetRecent(ctx, "s1", 1)
	if got[0].ID != a.ID {
		t.Errorf("touched node should lead: got %s, want %s", got[0].ID, a.ID)
	}

	if got, err := g.GetRecent(ctx, "nobody", 5); err != nil || len(got) != 0 {
		t.Errorf("unknown session = (%v, %v), want empty, nil", got, err)
	}
}

func TestGraph_EdgeIntegrity(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	n1 := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "preference", Summary: "p"})
	n2 := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "f"})
	foreign := mustCreate(t, g, memory.NewNode{SessionID: "s2", Category: "fact", Summary: "x"})

	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: n1.ID, TargetNodeID: n2.ID, Relation: memory.RelationPreferenceFor}); err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}

	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: n1.ID, TargetNodeID: "ghost", Relation: memory.RelationDescribes}); !errors.Is(err, memory.ErrIntegrity) {
		t.Errorf("missing endpoint error = %v, want ErrIntegrity", err)
	}
	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: n1.ID, TargetNodeID: foreign.ID, Relation: memory.RelationDescribes}); !errors.Is(err, memory.ErrIntegrity) {
		t.Errorf("cross-session error = %v, want ErrIntegrity", err)
	}

	count, err := g.CountEdges(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("edge count = %d after failed creates, want 1", count)
	}
}

func TestGraph_DeleteForSession(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	n1 := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "a"})
	n2 := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "b"})
	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: n1.ID, TargetNodeID: n2.ID, Relation: memory.RelationAssociatedWith}); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, g, memory.NewNode{SessionID: "s2", Category: "fact", Summary: "keep"})

	nodes, edges, err := g.DeleteForSession(ctx, "s1")
	if err != nil {
		t.Fatalf("DeleteForSession failed: %v", err)
	}
	if nodes != 2 || edges != 1 {
		t.Errorf("deleted (%d, %d), want (2, 1)", nodes, edges)
	}

	if got, _ := g.GetRecent(ctx, "s1", 25); len(got) != 0 {
		t.Errorf("s1 kept %d nodes", len(got))
	}
	if count, _ := g.CountNodes(ctx, "s2"); count != 1 {
		t.Errorf("s2 node count = %d, want 1", count)
	}
}

func TestGraph_RepointEdges(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	a := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "a"})
	b := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "b"})
	c := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "c"})

	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: memory.RelationSupports}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateEdge(ctx, memory.NewEdge{SourceNodeID: b.ID, TargetNodeID: c.ID, Relation: memory.RelationSupports}); err != nil {
		t.Fatal(err)
	}

	// b merges into c: a->b becomes a->c, b->c would self-loop and is dropped.
	moved, err := g.RepointEdges(ctx, b.ID, c.ID)
	if err != nil {
		t.Fatalf("RepointEdges failed: %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}

	edges, _ := g.EdgesForNode(ctx, c.ID)
	if len(edges) != 1 || edges[0].SourceNodeID != a.ID || edges[0].TargetNodeID != c.ID {
		t.Errorf("edges for c = %+v, want single a->c", edges)
	}
}

func TestGraph_Embeddings(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	n := mustCreate(t, g, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "x"})

	missing, err := g.MissingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 {
		t.Fatalf("missing embeddings = %d, want 1", len(missing))
	}

	vec := embedding.Vector{0.1, 0.2, 0.3}
	if err := g.SetEmbedding(ctx, n.ID, vec); err != nil {
		t.Fatalf("SetEmbedding failed: %v", err)
	}

	got, _ := g.GetNode(ctx, n.ID)
	if len(got.Embedding) != 3 || got.Embedding[2] != 0.3 {
		t.Errorf("embedding round-trip = %v, want %v", got.Embedding, vec)
	}

	if missing, _ := g.MissingEmbeddings(ctx, 10); len(missing) != 0 {
		t.Errorf("still %d nodes missing embeddings", len(missing))
	}
}

func TestGraph_SessionsAboveThreshold(t *testing.T) {
	t.Parallel()

	g, _ := newTestGraph(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreate(t, g, memory.NewNode{SessionID: "busy", Category: "fact", Summary: fmt.Sprintf("f%d", i)})
	}
	mustCreate(t, g, memory.NewNode{SessionID: "quiet", Category: "fact", Summary: "only one"})

	sessions, err := g.Sessions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0] != "busy" {
		t.Errorf("Sessions(2) = %v, want [busy]", sessions)
	}
}
