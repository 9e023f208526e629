package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/memgraph/internal/embedding/embedtest"
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

type testEnv struct {
	job   *Job
	graph *memory.InMemoryGraph
	clock *fakeTime
	reg   *memory.Registry
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	clock := &fakeTime{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	seq := 0
	reg := memory.NewRegistry()
	graph := memory.NewInMemoryGraph(reg,
		memory.WithClock(clock.Now),
		memory.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%04d", seq)
		}),
	)

	job := NewJob(graph, graph, reg, cfg, slog.Default(), nil)
	job.now = clock.Now
	return &testEnv{job: job, graph: graph, clock: clock, reg: reg}
}

func (env *testEnv) mustCreate(t *testing.T, in memory.NewNode) *memory.Node {
	t.Helper()
	node, err := env.graph.CreateNode(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	return node
}

func (env *testEnv) mustEmbed(t *testing.T, node *memory.Node, text string) {
	t.Helper()
	vec, err := (&embedtest.Provider{}).Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := env.graph.SetEmbedding(context.Background(), node.ID, vec); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
}

func TestDecayStaleNodes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{StalenessWindow: 24 * time.Hour, DecayFactor: 0.9})
	ctx := context.Background()

	stale := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "stale"})
	env.clock.Advance(48 * time.Hour)
	fresh := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "fresh"})

	if err := env.job.ConsolidateSession(ctx, "s1"); err != nil {
		t.Fatalf("ConsolidateSession: %v", err)
	}

	got, err := env.graph.GetNode(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	want := 0.75 * 0.9
	if got.Importance != want {
		t.Fatalf("stale importance = %v, want %v", got.Importance, want)
	}

	untouched, err := env.graph.GetNode(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if untouched.Importance != 0.75 {
		t.Fatalf("fresh importance = %v, want untouched 0.75", untouched.Importance)
	}
}

func TestDecayStopsAtFloor(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{StalenessWindow: time.Hour, DecayFactor: 0.5})
	ctx := context.Background()

	low := 0.21
	node := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "old", Importance: &low})
	env.clock.Advance(2 * time.Hour)

	floor := env.reg.ImportanceFloor(memory.CategoryFact)

	// Two passes: the first clamps to the floor, the second must not move it.
	for pass := 0; pass < 2; pass++ {
		if err := env.job.ConsolidateSession(ctx, "s1"); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		got, err := env.graph.GetNode(ctx, node.ID)
		if err != nil {
			t.Fatalf("GetNode: %v", err)
		}
		if got.Importance != floor {
			t.Fatalf("pass %d: importance = %v, want floor %v", pass, got.Importance, floor)
		}
	}
}

func TestMergeNearDuplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{SimilarityThreshold: 0.99, StalenessWindow: 24 * time.Hour})
	ctx := context.Background()

	imp := 0.95
	survivor := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "preference", Summary: "wants a garden", Importance: &imp})
	dup := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "preference", Summary: "dup"})
	other := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "identity", Summary: "contact c-1"})

	// Identical text embeds identically, so the pair clears any threshold.
	env.mustEmbed(t, survivor, "wants a garden")
	env.mustEmbed(t, dup, "wants a garden")
	env.mustEmbed(t, other, "contact c-1")

	// The duplicate carries an edge that must survive the merge.
	if _, err := env.graph.CreateEdge(ctx, memory.NewEdge{SourceNodeID: dup.ID, TargetNodeID: other.ID, Relation: "preference_for"}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	if err := env.job.ConsolidateSession(ctx, "s1"); err != nil {
		t.Fatalf("ConsolidateSession: %v", err)
	}

	if _, err := env.graph.GetNode(ctx, dup.ID); err == nil {
		t.Fatal("duplicate still exists, want it merged away")
	}
	if _, err := env.graph.GetNode(ctx, survivor.ID); err != nil {
		t.Fatalf("survivor: %v", err)
	}

	edges, err := env.graph.EdgesForNode(ctx, survivor.ID)
	if err != nil {
		t.Fatalf("EdgesForNode: %v", err)
	}
	if len(edges) != 1 || edges[0].SourceNodeID != survivor.ID || edges[0].TargetNodeID != other.ID {
		t.Fatalf("edges = %+v, want one repointed edge %s -> %s", edges, survivor.ID, other.ID)
	}
}

func TestMergeSkipsDistinctMemories(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{SimilarityThreshold: 0.99, StalenessWindow: 24 * time.Hour})
	ctx := context.Background()

	a := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "a"})
	b := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "b"})
	env.mustEmbed(t, a, "garden balcony sunlight morning")
	env.mustEmbed(t, b, "mortgage paperwork deadline bank")

	if err := env.job.ConsolidateSession(ctx, "s1"); err != nil {
		t.Fatalf("ConsolidateSession: %v", err)
	}

	count, err := env.graph.CountNodes(ctx, "s1")
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if count != 2 {
		t.Fatalf("nodes = %d, want both kept", count)
	}
}

func TestMergeIgnoresCrossCategory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{SimilarityThreshold: 0.5, StalenessWindow: 24 * time.Hour})
	ctx := context.Background()

	a := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "same text"})
	b := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "preference", Summary: "same text"})
	env.mustEmbed(t, a, "same text")
	env.mustEmbed(t, b, "same text")

	if err := env.job.ConsolidateSession(ctx, "s1"); err != nil {
		t.Fatalf("ConsolidateSession: %v", err)
	}

	count, err := env.graph.CountNodes(ctx, "s1")
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if count != 2 {
		t.Fatalf("nodes = %d, want identical text in different categories kept apart", count)
	}
}

func TestRunSkipsSmallSessions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{MinNodes: 3, StalenessWindow: time.Hour, DecayFactor: 0.5})
	ctx := context.Background()

	small := env.mustCreate(t, memory.NewNode{SessionID: "small", Category: "fact", Summary: "only one"})
	var big []*memory.Node
	for i := 0; i < 3; i++ {
		big = append(big, env.mustCreate(t, memory.NewNode{SessionID: "big", Category: "fact", Summary: fmt.Sprintf("n%d", i)}))
	}
	env.clock.Advance(2 * time.Hour)

	if err := env.job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := env.graph.GetNode(ctx, small.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Importance != 0.75 {
		t.Fatalf("small session importance = %v, want untouched 0.75", got.Importance)
	}

	decayed, err := env.graph.GetNode(ctx, big[0].ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if decayed.Importance >= 0.75 {
		t.Fatalf("big session importance = %v, want decayed below 0.75", decayed.Importance)
	}
}

func TestEmbedJobBackfill(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	ctx := context.Background()

	a := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "garden flat"})
	b := env.mustCreate(t, memory.NewNode{SessionID: "s1", Category: "fact", Summary: "city centre"})

	job := &EmbedJob{
		Nodes:    env.graph,
		Provider: &embedtest.Provider{},
		Logger:   slog.Default(),
	}
	if job.Name() != "embedding_backfill" {
		t.Fatalf("name = %q", job.Name())
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		node, err := env.graph.GetNode(ctx, id)
		if err != nil {
			t.Fatalf("GetNode: %v", err)
		}
		if len(node.Embedding) == 0 {
			t.Fatalf("node %s still unembedded", id)
		}
	}

	missing, err := env.graph.MissingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatalf("MissingEmbeddings: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %d, want 0 after backfill", len(missing))
	}
}
