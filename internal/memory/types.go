// Package memory defines the session memory graph: typed nodes, weighted
// relationship edges, the category registry that validates them, and the
// store contracts durable backends implement.
package memory

import (
	"time"

	"github.com/flemzord/memgraph/internal/embedding"
)

// Category is one of the eight canonical memory kinds.
type Category string

const (
	CategoryFact        Category = "fact"
	CategoryPreference  Category = "preference"
	CategoryDecision    Category = "decision"
	CategoryIdentity    Category = "identity"
	CategoryEvent       Category = "event"
	CategoryObservation Category = "observation"
	CategoryGoal        Category = "goal"
	CategoryTask        Category = "task"
)

// Relation is the type of a directed edge between two nodes.
type Relation string

const (
	RelationPreferenceFor  Relation = "preference_for"
	RelationDescribes      Relation = "describes"
	RelationInvolved       Relation = "involved"
	RelationForEntity      Relation = "for_entity"
	RelationAssociatedWith Relation = "associated_with"
	RelationSupports       Relation = "supports"
	RelationBlocks         Relation = "blocks"
)

// Node is one durable unit of remembered content.
type Node struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Category   Category       `json:"category"`
	Summary    string         `json:"summary"`
	Payload    map[string]any `json:"payload,omitempty"`
	Importance float64        `json:"importance"` // always in [0,1]
	CreatedAt  time.Time      `json:"created_at"`
	LastSeenAt time.Time      `json:"last_seen_at"` // >= CreatedAt; refreshed on re-mention or retrieval

	// Embedding is nil until the background embedding pass computes it. It
	// is internal ranking state and never serialized to API callers.
	Embedding embedding.Vector `json:"-"`
}

// Edge is a directed, weighted relation between two nodes in the same session.
// Edges are immutable: created, repointed during merges, or cascade-deleted.
type Edge struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	SourceNodeID string    `json:"source_node_id"`
	TargetNodeID string    `json:"target_node_id"`
	Relation     Relation  `json:"relation"`
	Weight       float64   `json:"weight"` // in [0,1]
	CreatedAt    time.Time `json:"created_at"`
}

// NewNode is the input to NodeStore.CreateNode.
type NewNode struct {
	SessionID string
	Category  string // raw name or deprecated alias, resolved via the Registry
	Summary   string
	Payload   map[string]any

	// Importance overrides the registry default when non-nil. Must be in
	// [0,1] or CreateNode fails with ErrValidation.
	Importance *float64
}

// NewEdge is the input to EdgeStore.CreateEdge.
type NewEdge struct {
	SourceNodeID string
	TargetNodeID string
	Relation     Relation

	// Weight overrides the relation default when non-nil.
	Weight *float64
}
