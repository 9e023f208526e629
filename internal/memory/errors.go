package memory

import "errors"

// Error taxonomy for the memory graph. Callers match with errors.Is; store
// implementations wrap these with operation context via fmt.Errorf and %w.
var (
	// ErrValidation indicates bad caller input: an unknown category or alias,
	// an importance outside [0,1], or a missing category-required payload
	// field. Never retried automatically.
	ErrValidation = errors.New("memory: validation failed")

	// ErrIntegrity indicates an edge referencing a missing or cross-session
	// node. The edge is not persisted.
	ErrIntegrity = errors.New("memory: integrity violation")

	// ErrNotFound indicates an absent node or session-state entry where
	// absence is meaningful. Empty retrieval results are not errors.
	ErrNotFound = errors.New("memory: not found")

	// ErrConcurrency indicates an optimistic-write conflict on session state
	// that persisted through internal retries.
	ErrConcurrency = errors.New("memory: concurrent update conflict")
)
