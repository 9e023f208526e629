package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCache() (*SessionCache, *fakeTime) {
	c := NewSessionCache()
	ft := &fakeTime{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c.now = ft.Now
	return c, ft
}

func TestSessionCache_ObserveAndLookup(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()

	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "5", NodeID: "n1"}); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	ref, err := c.Lookup("s1", EntityProperty)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if ref.ID != "5" || ref.NodeID != "n1" {
		t.Errorf("ref = %+v, want ID=5 NodeID=n1", ref)
	}

	// A later observe of the same kind overwrites the pointer.
	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "7", NodeID: "n2"}); err != nil {
		t.Fatal(err)
	}
	ref, _ = c.Lookup("s1", EntityProperty)
	if ref.ID != "7" {
		t.Errorf("ref.ID = %q after overwrite, want 7", ref.ID)
	}
}

func TestSessionCache_LookupMissing(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()

	if _, err := c.Lookup("ghost", EntityProperty); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup of unknown session error = %v, want ErrNotFound", err)
	}

	if err := c.Observe("s1", EntityRef{Kind: EntityContact, ID: "c9"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lookup("s1", EntityContract); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup of unobserved kind error = %v, want ErrNotFound", err)
	}
}

// loseRaces makes the next n Observe attempts on sessionID lose their
// version check, as if a competing writer landed between the snapshot and
// the apply. The clock hook runs inside tryObserve with the write lock
// held, so bumping the version directly is safe.
func loseRaces(c *SessionCache, ft *fakeTime, sessionID string, n int) {
	remaining := n
	c.now = func() time.Time {
		if remaining > 0 {
			remaining--
			if state, ok := c.sessions[sessionID]; ok {
				state.version++
			}
		}
		return ft.Now()
	}
}

func TestSessionCache_ObserveRetriesLostRace(t *testing.T) {
	t.Parallel()

	c, ft := newTestCache()
	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "1", NodeID: "n1"}); err != nil {
		t.Fatal(err)
	}

	// One lost race: the first attempt fails the version check, the retry
	// lands.
	loseRaces(c, ft, "s1", 1)
	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "2", NodeID: "n2"}); err != nil {
		t.Fatalf("Observe should retry past a single lost race: %v", err)
	}
	ref, err := c.Lookup("s1", EntityProperty)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if ref.ID != "2" {
		t.Errorf("ref.ID = %q after retried observe, want 2", ref.ID)
	}
}

func TestSessionCache_ObserveExhaustedRetries(t *testing.T) {
	t.Parallel()

	c, ft := newTestCache()
	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "1", NodeID: "n1"}); err != nil {
		t.Fatal(err)
	}

	// Every attempt loses its race.
	loseRaces(c, ft, "s1", observeRetries)
	err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "2", NodeID: "n2"})
	if !errors.Is(err, ErrConcurrency) {
		t.Fatalf("Observe error = %v, want ErrConcurrency", err)
	}

	// The losing write left no partial state behind.
	ref, lookupErr := c.Lookup("s1", EntityProperty)
	if lookupErr != nil {
		t.Fatalf("Lookup failed: %v", lookupErr)
	}
	if ref.ID != "1" {
		t.Errorf("ref.ID = %q after failed observe, want 1", ref.ID)
	}
}

func TestSessionCache_ClearAndPrune(t *testing.T) {
	t.Parallel()

	c, ft := newTestCache()

	if err := c.Observe("s1", EntityRef{Kind: EntityProperty, ID: "1"}); err != nil {
		t.Fatal(err)
	}
	ft.Advance(10 * time.Minute)
	if err := c.Observe("s2", EntityRef{Kind: EntityContact, ID: "2"}); err != nil {
		t.Fatal(err)
	}

	c.Clear("s1")
	if _, err := c.Lookup("s1", EntityProperty); !errors.Is(err, ErrNotFound) {
		t.Error("s1 state survived Clear")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after clear, want 1", c.Len())
	}

	ft.Advance(time.Hour)
	if pruned := c.Prune(30 * time.Minute); pruned != 1 {
		t.Errorf("Prune evicted %d sessions, want 1", pruned)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after prune, want 0", c.Len())
	}
}

func TestSessionCache_Rebuild(t *testing.T) {
	t.Parallel()

	g, ft := newTestGraph()
	ctx := context.Background()

	mustCreate(t, g, NewNode{
		SessionID: "s1", Category: "identity", Summary: "property 5",
		Payload: map[string]any{"property_id": "5"},
	})
	ft.Advance(time.Minute)
	latest := mustCreate(t, g, NewNode{
		SessionID: "s1", Category: "identity", Summary: "property 9",
		Payload: map[string]any{"property_id": "9"},
	})
	ft.Advance(time.Minute)
	mustCreate(t, g, NewNode{
		SessionID: "s1", Category: "event", Summary: "call with Dana",
		Payload: map[string]any{"entity_type": "contact", "entity_id": "dana"},
	})

	c, _ := newTestCache()
	if err := c.Rebuild(ctx, g, "s1", 50); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	ref, err := c.Lookup("s1", EntityProperty)
	if err != nil {
		t.Fatalf("Lookup after rebuild failed: %v", err)
	}
	if ref.ID != "9" || ref.NodeID != latest.ID {
		t.Errorf("property ref = %+v, want the most recent (ID=9)", ref)
	}

	if ref, err := c.Lookup("s1", EntityContact); err != nil || ref.ID != "dana" {
		t.Errorf("contact ref = %+v, %v; want dana", ref, err)
	}
}

func TestEntityRefs(t *testing.T) {
	t.Parallel()

	node := &Node{
		ID: "n1",
		Payload: map[string]any{
			"property_id": "5",
			"entity_type": "contact",
			"entity_id":   "dana",
			"note":        "ignored",
		},
	}

	refs := EntityRefs(node)
	if len(refs) != 2 {
		t.Fatalf("EntityRefs returned %d refs, want 2", len(refs))
	}
	// Sorted by kind: contact before property.
	if refs[0].Kind != EntityContact || refs[0].ID != "dana" {
		t.Errorf("refs[0] = %+v, want contact/dana", refs[0])
	}
	if refs[1].Kind != EntityProperty || refs[1].ID != "5" {
		t.Errorf("refs[1] = %+v, want property/5", refs[1])
	}

	if refs := EntityRefs(&Node{ID: "n2", Payload: map[string]any{"note": "x"}}); len(refs) != 0 {
		t.Errorf("unexpected refs %v from unrecognised payload", refs)
	}
	if refs := EntityRefs(nil); refs != nil {
		t.Errorf("EntityRefs(nil) = %v, want nil", refs)
	}
}
