// Package consolidate keeps the memory graph healthy over time: a periodic
// job decays the importance of stale nodes towards their category floor and
// merges near-duplicate memories, and a companion job backfills embeddings
// for nodes written before a provider was available.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/memgraph/internal/cron"
	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/metrics"
)

// Compile-time interface checks.
var (
	_ cron.Job = (*Job)(nil)
	_ cron.Job = (*EmbedJob)(nil)
)

// Config tunes the consolidation job.
type Config struct {
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule"`

	// MinNodes skips sessions too small to be worth consolidating.
	MinNodes int `yaml:"min_nodes"`

	// StalenessWindow is how long a node must go untouched before its
	// importance decays.
	StalenessWindow time.Duration `yaml:"staleness_window"`

	// DecayFactor multiplies the importance of each stale node per run,
	// bounded below by the category floor. Must be in (0, 1].
	DecayFactor float64 `yaml:"decay_factor"`

	// SimilarityThreshold is the minimum cosine similarity for two
	// same-category nodes to be considered duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// Defaults fills zero fields.
func (c Config) Defaults() Config {
	if c.Schedule == "" {
		c.Schedule = "0 * * * *"
	}
	if c.MinNodes <= 0 {
		c.MinNodes = 5
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 24 * time.Hour
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = 0.95
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 0.92
	}
	return c
}

// Job is the periodic consolidation pass.
type Job struct {
	nodes   memory.NodeStore
	edges   memory.EdgeStore
	reg     *memory.Registry
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewJob creates the consolidation job. logger and m may be nil.
func NewJob(nodes memory.NodeStore, edges memory.EdgeStore, reg *memory.Registry, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		nodes:   nodes,
		edges:   edges,
		reg:     reg,
		cfg:     cfg.Defaults(),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Name implements cron.Job.
func (j *Job) Name() string { return "memory_consolidation" }

// Schedule implements cron.Job.
func (j *Job) Schedule() string { return j.cfg.Schedule }

// Run consolidates every session above the size threshold. A failing
// session is logged and skipped so one bad session cannot starve the rest.
func (j *Job) Run(ctx context.Context) error {
	j.metrics.IncConsolidationRun()

	sessions, err := j.nodes.Sessions(ctx, j.cfg.MinNodes)
	if err != nil {
		return fmt.Errorf("consolidate: list sessions: %w", err)
	}

	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return fmt.Errorf("consolidate: cancelled: %w", ctx.Err())
		}
		if err := j.ConsolidateSession(ctx, sessionID); err != nil {
			j.metrics.IncConsolidationError()
			j.logger.Error("consolidation failed for session", "session", sessionID, "error", err)
		}
	}
	return nil
}

// ConsolidateSession runs the decay and merge passes over one session.
func (j *Job) ConsolidateSession(ctx context.Context, sessionID string) error {
	nodes, err := j.nodes.NodesForSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("consolidate: load session %s: %w", sessionID, err)
	}

	decayed, err := j.decay(ctx, nodes)
	if err != nil {
		return err
	}
	merged, err := j.merge(ctx, nodes)
	if err != nil {
		return err
	}

	if decayed > 0 || merged > 0 {
		j.logger.Info("session consolidated",
			"session", sessionID, "decayed", decayed, "merged", merged, "nodes", len(nodes))
	}
	return nil
}

// decay lowers the importance of nodes untouched beyond the staleness
// window, never below the category floor.
func (j *Job) decay(ctx context.Context, nodes []memory.Node) (int, error) {
	cutoff := j.now().UTC().Add(-j.cfg.StalenessWindow)
	decayed := 0

	for i := range nodes {
		node := &nodes[i]
		if node.LastSeenAt.After(cutoff) {
			continue
		}

		floor := j.reg.ImportanceFloor(node.Category)
		next := node.Importance * j.cfg.DecayFactor
		if next < floor {
			next = floor
		}
		if next >= node.Importance {
			continue
		}

		if err := j.nodes.UpdateImportance(ctx, node.ID, next); err != nil {
			return decayed, fmt.Errorf("consolidate: decay node %s: %w", node.ID, err)
		}
		node.Importance = next
		decayed++
	}

	j.metrics.AddConsolidationDecays(decayed)
	return decayed, nil
}

// merge folds near-duplicate same-category nodes into the more important
// one. The loser's edges are repointed to the survivor before deletion, so
// no relationship is lost; repointing drops would-be self-loops and
// duplicate edges rather than creating them.
func (j *Job) merge(ctx context.Context, nodes []memory.Node) (int, error) {
	byCategory := make(map[memory.Category][]*memory.Node)
	for i := range nodes {
		if len(nodes[i].Embedding) == 0 {
			continue
		}
		byCategory[nodes[i].Category] = append(byCategory[nodes[i].Category], &nodes[i])
	}

	merged := 0
	gone := make(map[string]bool)

	for _, group := range byCategory {
		for a := 0; a < len(group); a++ {
			for b := a + 1; b < len(group); b++ {
				if gone[group[a].ID] {
					break
				}
				if gone[group[b].ID] {
					continue
				}

				sim, err := embedding.Cosine(group[a].Embedding, group[b].Embedding)
				if err != nil || sim < j.cfg.SimilarityThreshold {
					continue
				}

				survivor, loser := pick(group[a], group[b])
				if err := j.mergeInto(ctx, survivor, loser); err != nil {
					return merged, err
				}
				gone[loser.ID] = true
				merged++
			}
		}
	}

	j.metrics.AddConsolidationMerges(merged)
	return merged, nil
}

// pick chooses the merge survivor: higher importance wins, recency breaks
// ties.
func pick(a, b *memory.Node) (survivor, loser *memory.Node) {
	if a.Importance != b.Importance {
		if a.Importance > b.Importance {
			return a, b
		}
		return b, a
	}
	if a.LastSeenAt.After(b.LastSeenAt) {
		return a, b
	}
	return b, a
}

// mergeInto repoints the loser's edges onto the survivor and deletes the
// loser.
func (j *Job) mergeInto(ctx context.Context, survivor, loser *memory.Node) error {
	moved, err := j.edges.RepointEdges(ctx, loser.ID, survivor.ID)
	if err != nil {
		return fmt.Errorf("consolidate: repoint %s onto %s: %w", loser.ID, survivor.ID, err)
	}
	if _, err := j.edges.DeleteForNodes(ctx, []string{loser.ID}); err != nil {
		return fmt.Errorf("consolidate: drop edges of %s: %w", loser.ID, err)
	}
	if _, err := j.nodes.DeleteNodes(ctx, []string{loser.ID}); err != nil {
		return fmt.Errorf("consolidate: delete merged node %s: %w", loser.ID, err)
	}

	j.logger.Debug("merged duplicate memory",
		"survivor", survivor.ID, "merged", loser.ID, "edges_moved", moved)
	return nil
}
