package consolidate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/memory"
)

// EmbedJob backfills embeddings for nodes that were written without one,
// in batches, so similarity scoring and duplicate merging can cover them.
type EmbedJob struct {
	Nodes        memory.NodeStore
	Provider     embedding.Provider
	Logger       *slog.Logger
	BatchSize    int    // <= 0 means default 64
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Name implements cron.Job.
func (j *EmbedJob) Name() string { return "embedding_backfill" }

// Schedule implements cron.Job.
func (j *EmbedJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run embeds one batch of unembedded nodes. A node whose embedding fails is
// logged and skipped; it will be retried on the next tick.
func (j *EmbedJob) Run(ctx context.Context) error {
	batch := j.BatchSize
	if batch <= 0 {
		batch = 64
	}

	nodes, err := j.Nodes.MissingEmbeddings(ctx, batch)
	if err != nil {
		return fmt.Errorf("consolidate: list unembedded nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil
	}

	embedded := 0
	for i := range nodes {
		if ctx.Err() != nil {
			return fmt.Errorf("consolidate: embedding backfill cancelled: %w", ctx.Err())
		}

		vec, err := j.Provider.Embed(ctx, nodes[i].Summary)
		if err != nil {
			j.Logger.Warn("embedding failed", "node", nodes[i].ID, "error", err)
			continue
		}
		if err := j.Nodes.SetEmbedding(ctx, nodes[i].ID, vec); err != nil {
			return fmt.Errorf("consolidate: store embedding for %s: %w", nodes[i].ID, err)
		}
		embedded++
	}

	j.Logger.Info("embedding backfill", "embedded", embedded, "batch", len(nodes))
	return nil
}
