package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/flemzord/memgraph/internal/memory"
)

// Legacy remember operations kept for callers written against the pre-graph
// API. Each maps onto a canonical category through the registry aliases; the
// original surface name is preserved in the payload so old consumers can
// still distinguish them.

// RememberObjection records a client objection as a preference node.
func (r *Recorder) RememberObjection(ctx context.Context, sessionID, text string) (*memory.Node, error) {
	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  "objection",
		Summary:   text,
		Payload:   map[string]any{"legacy_kind": "objection"},
	}, memory.RelationPreferenceFor)
}

// RememberPromise records a commitment as a task node. A nil due time is
// ErrValidation: promises without deadlines were the main source of silently
// dropped follow-ups in the old model.
func (r *Recorder) RememberPromise(ctx context.Context, sessionID, text string, dueAt *time.Time) (*memory.Node, error) {
	payload := map[string]any{"legacy_kind": "promise"}
	if dueAt != nil {
		payload["due_at"] = dueAt.UTC().Format(time.RFC3339Nano)
	}

	node, err := r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  "promise",
		Summary:   text,
		Payload:   payload,
	}, memory.RelationForEntity)
	if err != nil {
		return nil, fmt.Errorf("recorder: promise: %w", err)
	}
	return node, nil
}

// RememberSessionState records a free-form session note as a fact node.
func (r *Recorder) RememberSessionState(ctx context.Context, sessionID, text string, payload map[string]any) (*memory.Node, error) {
	merged := map[string]any{"legacy_kind": "session_state"}
	for k, v := range payload {
		merged[k] = v
	}
	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  "session_state",
		Summary:   text,
		Payload:   merged,
	}, memory.RelationAssociatedWith)
}
