// Package recorder is the write surface of the memory graph: the remember_*
// operations collaborators call through the conversational orchestrator,
// the legacy aliases, and session clearing. Every write flows through the
// node store for validation, then feeds entity pointers into the session
// state cache and links the new node to previously referenced entities.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/metrics"
	"github.com/flemzord/memgraph/internal/telemetry"
)

// Recorder orchestrates memory writes.
type Recorder struct {
	nodes   memory.NodeStore
	edges   memory.EdgeStore
	reg     *memory.Registry
	state   *memory.SessionCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates a recorder. logger and m may be nil.
func New(nodes memory.NodeStore, edges memory.EdgeStore, reg *memory.Registry, state *memory.SessionCache, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		nodes:   nodes,
		edges:   edges,
		reg:     reg,
		state:   state,
		logger:  logger,
		metrics: m,
		tracer:  telemetry.Tracer("memgraph/recorder"),
	}
}

// ClearResult reports what a session clear removed.
type ClearResult struct {
	NodesDeleted int `json:"nodes_deleted"`
	EdgesDeleted int `json:"edges_deleted"`
}

// RememberFact records a plain fact. An empty category defaults to "fact";
// a non-empty one may be any canonical name or alias.
func (r *Recorder) RememberFact(ctx context.Context, sessionID, text, category string) (*memory.Node, error) {
	if category == "" {
		category = string(memory.CategoryFact)
	}
	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  category,
		Summary:   text,
	}, memory.RelationAssociatedWith)
}

// RememberPreference records a preference, optionally tied to an entity.
// When the entity was previously seen in the session, a preference_for edge
// links the new node to it.
func (r *Recorder) RememberPreference(ctx context.Context, sessionID, text, entityType, entityID string) (*memory.Node, error) {
	payload := map[string]any{}
	if entityType != "" && entityID != "" {
		payload["entity_type"] = entityType
		payload["entity_id"] = entityID
	}
	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  string(memory.CategoryPreference),
		Summary:   text,
		Payload:   payload,
	}, memory.RelationPreferenceFor)
}

// RememberDecision records a decision with optional context (e.g. the
// competing alternatives).
func (r *Recorder) RememberDecision(ctx context.Context, sessionID, text string, decisionCtx map[string]any) (*memory.Node, error) {
	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  string(memory.CategoryDecision),
		Summary:   text,
		Payload:   decisionCtx,
	}, memory.RelationSupports)
}

// RememberIdentity records identity data for an entity and makes it the
// session's most recent entity of its kind.
func (r *Recorder) RememberIdentity(ctx context.Context, sessionID, entityType, entityID string, identityData map[string]any) (*memory.Node, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("recorder: identity requires entity type and id: %w", memory.ErrValidation)
	}

	payload := map[string]any{"entity_type": entityType, "entity_id": entityID}
	for k, v := range identityData {
		payload[k] = v
	}

	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  string(memory.CategoryIdentity),
		Summary:   fmt.Sprintf("%s %s", entityType, entityID),
		Payload:   payload,
	}, memory.RelationForEntity)
}

// EventEntity names an entity involved in an event.
type EventEntity struct {
	Type string
	ID   string
}

// RememberEvent records an event involving zero or more entities. Each
// previously seen entity gets an involved edge.
func (r *Recorder) RememberEvent(ctx context.Context, sessionID, eventType, description string, entities []EventEntity, timestamp *time.Time) (*memory.Node, error) {
	if eventType == "" {
		return nil, fmt.Errorf("recorder: event type is required: %w", memory.ErrValidation)
	}

	payload := map[string]any{"event_type": eventType}
	if timestamp != nil {
		payload["occurred_at"] = timestamp.UTC().Format(time.RFC3339Nano)
	}

	node, err := r.createNode(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  string(memory.CategoryEvent),
		Summary:   description,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	// Link and track each involved entity individually; the payload holds
	// only the event itself.
	var refs []memory.EntityRef
	for _, entity := range entities {
		probe := memory.Node{ID: node.ID, SessionID: sessionID, LastSeenAt: node.LastSeenAt,
			Payload: map[string]any{"entity_type": entity.Type, "entity_id": entity.ID}}
		refs = append(refs, memory.EntityRefs(&probe)...)
	}
	r.connect(ctx, node, refs, memory.RelationInvolved)
	if len(refs) > 0 {
		if err := r.state.Observe(sessionID, refs...); err != nil {
			r.logger.Warn("session state update failed", "session", sessionID, "error", err)
		}
	}

	return node, nil
}

// RememberObservation records a softer observation. A confidence in [0,1]
// scales the category's default importance; outside that range it is
// ErrValidation.
func (r *Recorder) RememberObservation(ctx context.Context, sessionID, text, category string, confidence *float64) (*memory.Node, error) {
	if category == "" {
		category = string(memory.CategoryObservation)
	}

	in := memory.NewNode{
		SessionID: sessionID,
		Category:  category,
		Summary:   text,
	}

	if confidence != nil {
		if *confidence < 0 || *confidence > 1 {
			return nil, fmt.Errorf("recorder: confidence %v outside [0,1]: %w", *confidence, memory.ErrValidation)
		}
		canonical, err := r.reg.ResolveCategory(category)
		if err != nil {
			return nil, err
		}
		in.Payload = map[string]any{"confidence": *confidence}
		scaled := r.reg.DefaultImportance(canonical) * (*confidence)
		in.Importance = &scaled
	}

	return r.create(ctx, in, memory.RelationAssociatedWith)
}

// goalImportance maps a goal priority to its importance.
var goalImportance = map[string]float64{
	"critical": 1.0,
	"high":     0.95,
	"medium":   0.90,
	"low":      0.80,
}

// RememberGoal records a goal. Priority is one of critical, high, medium,
// low (empty defaults to medium) and determines importance.
func (r *Recorder) RememberGoal(ctx context.Context, sessionID, text string, metadata map[string]any, priority string) (*memory.Node, error) {
	if priority == "" {
		priority = "medium"
	}
	importance, ok := goalImportance[priority]
	if !ok {
		return nil, fmt.Errorf("recorder: unknown goal priority %q: %w", priority, memory.ErrValidation)
	}

	payload := map[string]any{"priority": priority}
	for k, v := range metadata {
		payload[k] = v
	}

	return r.create(ctx, memory.NewNode{
		SessionID:  sessionID,
		Category:   string(memory.CategoryGoal),
		Summary:    text,
		Payload:    payload,
		Importance: &importance,
	}, memory.RelationAssociatedWith)
}

// RememberTask records a task. A zero due time is ErrValidation: a task
// without a due date cannot be surfaced by reminder-style consumers.
// entityRefs maps payload keys (property_id, contact_id, ...) to entity IDs
// and produces for_entity edges.
func (r *Recorder) RememberTask(ctx context.Context, sessionID, text string, dueAt time.Time, entityRefs map[string]string) (*memory.Node, error) {
	payload := map[string]any{}
	if !dueAt.IsZero() {
		payload["due_at"] = dueAt.UTC().Format(time.RFC3339Nano)
	}
	for k, v := range entityRefs {
		payload[k] = v
	}

	return r.create(ctx, memory.NewNode{
		SessionID: sessionID,
		Category:  string(memory.CategoryTask),
		Summary:   text,
		Payload:   payload,
	}, memory.RelationForEntity)
}

// ClearSession atomically removes all nodes and edges of a session and
// drops its cached state. Unknown sessions clear to zero counts.
func (r *Recorder) ClearSession(ctx context.Context, sessionID string) (ClearResult, error) {
	nodes, edges, err := r.nodes.DeleteForSession(ctx, sessionID)
	if err != nil {
		return ClearResult{}, fmt.Errorf("recorder: clear session %s: %w", sessionID, err)
	}
	r.state.Clear(sessionID)
	r.metrics.IncSessionsCleared()

	r.logger.Info("session cleared", "session", sessionID, "nodes", nodes, "edges", edges)
	return ClearResult{NodesDeleted: nodes, EdgesDeleted: edges}, nil
}

// create persists a node, then links recognizable entity references with
// the given relation and updates the session cache.
func (r *Recorder) create(ctx context.Context, in memory.NewNode, rel memory.Relation) (*memory.Node, error) {
	node, err := r.createNode(ctx, in)
	if err != nil {
		return nil, err
	}

	r.connect(ctx, node, memory.EntityRefs(node), rel)
	r.observe(node)
	return node, nil
}

// createNode persists the node and records the write metric.
func (r *Recorder) createNode(ctx context.Context, in memory.NewNode) (*memory.Node, error) {
	ctx, span := r.tracer.Start(ctx, "remember", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("memory.category", in.Category),
	))
	defer span.End()

	node, err := r.nodes.CreateNode(ctx, in)
	if err != nil {
		return nil, err
	}
	r.metrics.IncNodeCreated(string(node.Category))
	return node, nil
}

// connect links the node to the previously seen node of each referenced
// entity. Link failures are logged, not surfaced: the node write already
// succeeded and the edge is best-effort enrichment.
func (r *Recorder) connect(ctx context.Context, node *memory.Node, refs []memory.EntityRef, rel memory.Relation) {
	for _, ref := range refs {
		prev, err := r.state.Lookup(node.SessionID, ref.Kind)
		if err != nil || prev.ID != ref.ID || prev.NodeID == node.ID {
			continue
		}

		if _, err := r.edges.CreateEdge(ctx, memory.NewEdge{
			SourceNodeID: node.ID,
			TargetNodeID: prev.NodeID,
			Relation:     rel,
		}); err != nil {
			r.logger.Warn("entity link failed",
				"session", node.SessionID,
				"node", node.ID,
				"entity", string(ref.Kind)+":"+ref.ID,
				"error", err,
			)
			continue
		}
		r.metrics.IncEdgeCreated(string(rel))
	}
}

// observe refreshes the session cache pointers from the node's references.
func (r *Recorder) observe(node *memory.Node) {
	refs := memory.EntityRefs(node)
	if len(refs) == 0 {
		return
	}
	for i := range refs {
		refs[i].NodeID = node.ID
		refs[i].SeenAt = node.LastSeenAt
	}
	if err := r.state.Observe(node.SessionID, refs...); err != nil {
		r.logger.Warn("session state update failed", "session", node.SessionID, "error", err)
	}
}
