package timeline

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"seam/internal/logging"
	"seam/internal/types"
)

func messageEvent(sessionID, id, content string, partial bool, ts time.Time) *types.Event {
	return &types.Event{
		ID:        id,
		SessionID: sessionID,
		Kind:      types.EventKindMessage,
		Role:      types.RoleAssistant,
		Timestamp: ts,
		Source:    types.SourceLive,
		Message:   &types.MessagePayload{Content: content, Partial: partial},
	}
}

func TestUpsertInsertsAndMerges(t *testing.T) {
	s := NewStore(0, logging.Nop())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert(messageEvent("s1", "m1", "hel", true, ts))
	s.Upsert(messageEvent("s1", "m1", "lo", true, ts))

	ev, ok := s.Get("s1", "m1")
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Message.Content != "hello" {
		t.Fatalf("content %q", ev.Message.Content)
	}
	if !ev.Message.Partial {
		t.Fatalf("still streaming, must stay partial")
	}
	if s.Len("s1") != 1 {
		t.Fatalf("merge must not add a second event")
	}
}

func TestPartialNeverFlipsBackToTrue(t *testing.T) {
	s := NewStore(0, logging.Nop())
	ts := time.Now()

	s.Upsert(messageEvent("s1", "m1", "a", true, ts))
	s.Upsert(messageEvent("s1", "m1", "b", false, ts))
	s.Upsert(messageEvent("s1", "m1", "c", true, ts))

	ev, _ := s.Get("s1", "m1")
	if ev.Message.Partial {
		t.Fatalf("a finalized message must stay final")
	}
	if ev.Message.Content != "abc" {
		t.Fatalf("late content must still append, got %q", ev.Message.Content)
	}
}

// A redelivered chunk carries the same timestamp and text; applying it
// again must leave the content untouched.
func TestDuplicateChunkAppliesOnce(t *testing.T) {
	s := NewStore(0, logging.Nop())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert(messageEvent("s1", "m1", "Hello", true, ts))
	s.Upsert(messageEvent("s1", "m1", "Hello", true, ts))

	ev, _ := s.Get("s1", "m1")
	if ev.Message.Content != "Hello" {
		t.Fatalf("duplicate delivery doubled content: %q", ev.Message.Content)
	}
	if s.Len("s1") != 1 {
		t.Fatalf("duplicate delivery added an event")
	}
}

// Chunks of one message delivered out of timestamp order must read back
// as the timestamp-ordered join, and the event must sit at its earliest
// chunk's timestamp either way.
func TestChunkReorderConverges(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	inOrder := NewStore(0, logging.Nop())
	inOrder.Upsert(messageEvent("s1", "m1", "Hello", true, t0))
	inOrder.Upsert(messageEvent("s1", "m1", " world", true, t1))

	reversed := NewStore(0, logging.Nop())
	reversed.Upsert(messageEvent("s1", "m1", " world", true, t1))
	reversed.Upsert(messageEvent("s1", "m1", "Hello", true, t0))

	for name, s := range map[string]*Store{"in-order": inOrder, "reversed": reversed} {
		ev, ok := s.Get("s1", "m1")
		if !ok {
			t.Fatalf("%s: event missing", name)
		}
		if ev.Message.Content != "Hello world" {
			t.Fatalf("%s: content %q, want %q", name, ev.Message.Content, "Hello world")
		}
		if !ev.Timestamp.Equal(t0) {
			t.Fatalf("%s: timestamp %v, want %v", name, ev.Timestamp, t0)
		}
	}
}

func TestSessionOrdersByTimestampThenArrival(t *testing.T) {
	s := NewStore(0, logging.Nop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert(messageEvent("s1", "late", "z", false, base.Add(2*time.Second)))
	s.Upsert(messageEvent("s1", "tie-b", "b", false, base))
	s.Upsert(messageEvent("s1", "tie-a", "a", false, base))
	s.Upsert(messageEvent("s1", "early", "x", false, base.Add(-time.Second)))

	got := s.Session("s1")
	want := []string{"early", "tie-b", "tie-a", "late"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}
}

// Replaying the same events in any arrival order must converge to the
// same timeline.
func TestUpsertOrderInvariance(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	build := func() []*types.Event {
		return []*types.Event{
			messageEvent("s1", "m1", "one", false, base),
			{
				ID: "c1", SessionID: "s1", Kind: types.EventKindToolCall,
				Timestamp: base.Add(time.Second), Source: types.SourceLive,
				ToolCall: &types.ToolCallPayload{Name: "bash", Params: map[string]any{"cmd": "ls"}},
			},
			{
				ID: "r1", SessionID: "s1", Kind: types.EventKindToolResult,
				Timestamp: base.Add(2 * time.Second), Source: types.SourceLive,
				ToolResult: &types.ToolResultPayload{CallID: "c1", Success: true, Result: "ok"},
			},
		}
	}

	reference := NewStore(0, logging.Nop())
	for _, ev := range build() {
		reference.Upsert(ev)
	}
	wantIDs := ids(reference.Session("s1"))

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		events := build()
		rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
		s := NewStore(0, logging.Nop())
		for _, ev := range events {
			s.Upsert(ev)
		}
		if got := ids(s.Session("s1")); fmt.Sprint(got) != fmt.Sprint(wantIDs) {
			t.Fatalf("trial %d: order %v, want %v", trial, got, wantIDs)
		}
	}
}

func ids(events []*types.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestMarkComplete(t *testing.T) {
	s := NewStore(0, logging.Nop())
	ts := time.Now()
	s.Upsert(messageEvent("s1", "m1", "a", true, ts))
	s.Upsert(messageEvent("s1", "m2", "b", false, ts))

	if !s.MarkComplete("s1") {
		t.Fatalf("expected a change")
	}
	if s.HasPartial("s1") {
		t.Fatalf("no partials may survive completion")
	}
	if s.MarkComplete("s1") {
		t.Fatalf("second completion must be a no-op")
	}
	if s.MarkComplete("unknown") {
		t.Fatalf("unknown session must report no change")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(0, logging.Nop())
	s.Upsert(messageEvent("s1", "m1", "orig", true, time.Now()))

	snapshot := s.Session("s1")
	snapshot[0].Message.Content = "mutated"

	ev, _ := s.Get("s1", "m1")
	if ev.Message.Content != "orig" {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}

func TestSessionCapEvictsLeastRecentlyActive(t *testing.T) {
	s := NewStore(2, logging.Nop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert(messageEvent("old", "m1", "a", false, base))
	s.Upsert(messageEvent("fresh", "m1", "b", false, base.Add(time.Minute)))
	s.Upsert(messageEvent("new", "m1", "c", false, base.Add(2*time.Minute)))

	if s.Len("old") != 0 {
		t.Fatalf("least recently active session must be evicted")
	}
	if s.Len("fresh") != 1 || s.Len("new") != 1 {
		t.Fatalf("other sessions must survive")
	}
}

func TestEvictionNeverTargetsIncomingSession(t *testing.T) {
	s := NewStore(1, logging.Nop())
	base := time.Now()
	s.Upsert(messageEvent("a", "m1", "x", false, base))
	s.Upsert(messageEvent("b", "m1", "y", false, base.Add(time.Second)))

	if s.Len("b") != 1 {
		t.Fatalf("the session being written must never be the eviction victim")
	}
}

func TestRemoveAndEvictSession(t *testing.T) {
	s := NewStore(0, logging.Nop())
	ts := time.Now()
	s.Upsert(messageEvent("s1", "m1", "a", false, ts))
	s.Upsert(messageEvent("s1", "m2", "b", false, ts))

	s.Remove("s1", "m1")
	if _, ok := s.Get("s1", "m1"); ok {
		t.Fatalf("removed event still present")
	}
	if s.Len("s1") != 1 {
		t.Fatalf("expected 1 event")
	}

	s.EvictSession("s1")
	if s.Len("s1") != 0 {
		t.Fatalf("evicted session still has events")
	}
}
