package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EntityKind is a recognizable entity pointer type tracked per session.
type EntityKind string

const (
	EntityProperty EntityKind = "property"
	EntityContact  EntityKind = "contact"
	EntityContract EntityKind = "contract"
	EntityTask     EntityKind = "task"
)

// EntityRef points at the most recently referenced entity of a kind.
type EntityRef struct {
	Kind   EntityKind
	ID     string
	NodeID string // node whose write produced this pointer
	SeenAt time.Time
}

// SessionState holds the quick-lookup pointers for one session. It is a
// derived, rebuildable cache: safe to lose and reconstruct from recent nodes.
type SessionState struct {
	SessionID    string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Recent       map[EntityKind]EntityRef

	// version increments on every update; Observe uses it for optimistic
	// conflict detection.
	version uint64
}

// observeRetries bounds the optimistic-write retry loop before surfacing
// ErrConcurrency.
const observeRetries = 3

// SessionCache is a concurrency-safe cache of per-session entity pointers.
// Entries are created lazily on first observe, pruned after an idle TTL, and
// cleared explicitly on session clear. The `now` function is injectable for
// deterministic testing.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{
		sessions: make(map[string]*SessionState),
		now:      time.Now,
	}
}

// Observe records entity references for a session, overwriting the previous
// pointer of each kind. The state is created lazily on first observe. Updates
// use an optimistic version check with bounded retry; a conflict that
// persists surfaces as ErrConcurrency.
func (c *SessionCache) Observe(sessionID string, refs ...EntityRef) error {
	if sessionID == "" {
		return fmt.Errorf("memory: session id is required: %w", ErrValidation)
	}
	if len(refs) == 0 {
		return nil
	}

	for attempt := 0; attempt < observeRetries; attempt++ {
		snapshot := c.versionOf(sessionID)
		if c.tryObserve(sessionID, snapshot, refs) {
			return nil
		}
	}
	return fmt.Errorf("memory: session %s state update lost %d races: %w", sessionID, observeRetries, ErrConcurrency)
}

// versionOf reads the current version of a session's state, 0 if absent.
func (c *SessionCache) versionOf(sessionID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if state, ok := c.sessions[sessionID]; ok {
		return state.version
	}
	return 0
}

// tryObserve applies the refs if the version still matches the snapshot.
func (c *SessionCache) tryObserve(sessionID string, snapshot uint64, refs []EntityRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	state, ok := c.sessions[sessionID]
	if !ok {
		if snapshot != 0 {
			return false
		}
		state = &SessionState{
			SessionID: sessionID,
			CreatedAt: now,
			Recent:    make(map[EntityKind]EntityRef),
		}
		c.sessions[sessionID] = state
	} else if state.version != snapshot {
		return false
	}

	for _, ref := range refs {
		if ref.SeenAt.IsZero() {
			ref.SeenAt = now
		}
		state.Recent[ref.Kind] = ref
	}
	state.LastActiveAt = now
	state.version++
	return true
}

// Lookup returns the most recent entity pointer of the given kind.
// A session with no state, or a kind never observed, is ErrNotFound.
func (c *SessionCache) Lookup(sessionID string, kind EntityKind) (EntityRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		return EntityRef{}, fmt.Errorf("memory: session %s has no state: %w", sessionID, ErrNotFound)
	}
	ref, ok := state.Recent[kind]
	if !ok {
		return EntityRef{}, fmt.Errorf("memory: session %s has no recent %s: %w", sessionID, kind, ErrNotFound)
	}
	return ref, nil
}

// Snapshot returns a copy of a session's state, or ErrNotFound.
func (c *SessionCache) Snapshot(sessionID string) (SessionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		return SessionState{}, fmt.Errorf("memory: session %s has no state: %w", sessionID, ErrNotFound)
	}

	out := SessionState{
		SessionID:    state.SessionID,
		CreatedAt:    state.CreatedAt,
		LastActiveAt: state.LastActiveAt,
		Recent:       make(map[EntityKind]EntityRef, len(state.Recent)),
	}
	for kind, ref := range state.Recent {
		out.Recent[kind] = ref
	}
	return out, nil
}

// Clear removes a session's state. It is a no-op if none exists.
func (c *SessionCache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// Prune removes sessions idle longer than maxIdle and returns how many were
// evicted. Intended to be called periodically.
func (c *SessionCache) Prune(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	pruned := 0
	for id, state := range c.sessions {
		if now.Sub(state.LastActiveAt) > maxIdle {
			delete(c.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of sessions with cached state.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Rebuild reconstructs a session's pointers by re-scanning its most recent
// nodes, oldest first so newer references win. Used after a process restart.
func (c *SessionCache) Rebuild(ctx context.Context, nodes NodeStore, sessionID string, scanLimit int) error {
	recent, err := nodes.GetRecent(ctx, sessionID, scanLimit)
	if err != nil {
		return fmt.Errorf("memory: rebuild session %s state: %w", sessionID, err)
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].LastSeenAt.Before(recent[j].LastSeenAt) })

	c.Clear(sessionID)
	for i := range recent {
		refs := EntityRefs(&recent[i])
		if len(refs) == 0 {
			continue
		}
		if err := c.Observe(sessionID, refs...); err != nil {
			return err
		}
	}
	return nil
}

// entityPayloadKeys maps payload keys to the entity kind they reference.
var entityPayloadKeys = map[string]EntityKind{
	"property_id": EntityProperty,
	"contact_id":  EntityContact,
	"contract_id": EntityContract,
	"task_id":     EntityTask,
}

// EntityRefs extracts recognizable entity references from a node's payload:
// direct keys (property_id, contact_id, contract_id, task_id) and
// entity_type/entity_id pairs.
func EntityRefs(node *Node) []EntityRef {
	if node == nil || len(node.Payload) == 0 {
		return nil
	}

	var refs []EntityRef
	for key, kind := range entityPayloadKeys {
		if id, ok := payloadString(node.Payload, key); ok {
			refs = append(refs, EntityRef{Kind: kind, ID: id, NodeID: node.ID, SeenAt: node.LastSeenAt})
		}
	}

	if kindRaw, ok := payloadString(node.Payload, "entity_type"); ok {
		if id, ok := payloadString(node.Payload, "entity_id"); ok {
			if kind, ok := knownEntityKind(kindRaw); ok {
				refs = append(refs, EntityRef{Kind: kind, ID: id, NodeID: node.ID, SeenAt: node.LastSeenAt})
			}
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Kind < refs[j].Kind })
	return refs
}

// knownEntityKind normalises an entity type name to a tracked kind.
func knownEntityKind(name string) (EntityKind, bool) {
	switch EntityKind(strings.ToLower(name)) {
	case EntityProperty, EntityContact, EntityContract, EntityTask:
		return EntityKind(strings.ToLower(name)), true
	}
	return "", false
}

// payloadString fetches a non-empty string or stringable value from payload.
func payloadString(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, s != ""
	case fmt.Stringer:
		return s.String(), s.String() != ""
	default:
		return fmt.Sprintf("%v", v), true
	}
}
