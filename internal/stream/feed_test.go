package stream

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"seam/internal/clock"
	"seam/internal/logging"
	"seam/internal/normalize"
	"seam/internal/timeline"
	"seam/internal/types"
)

type recordedLiveness struct {
	mu       sync.Mutex
	awaiting []string
	idle     []string
}

func (r *recordedLiveness) MarkAwaiting(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awaiting = append(r.awaiting, sessionID)
}

func (r *recordedLiveness) MarkIdle(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle = append(r.idle, sessionID)
}

type feedFixture struct {
	feed    *Feed
	store   *timeline.Store
	clk     *clock.Fake
	live    *recordedLiveness
	mu      sync.Mutex
	batches int
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	f := &feedFixture{
		store: timeline.NewStore(0, logging.Nop()),
		clk:   clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		live:  &recordedLiveness{},
	}
	f.feed = NewFeed(f.store, normalize.New(logging.Nop()), f.live, f.clk, DefaultOptions(), logging.Nop())
	f.feed.Subscribe("s1", func(string) {
		f.mu.Lock()
		f.batches++
		f.mu.Unlock()
	})
	return f
}

func (f *feedFixture) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func chunk(sessionID, messageID, delta string) types.StreamEnvelope {
	data, _ := json.Marshal(types.ChunkData{Delta: delta, Role: "assistant"})
	return types.StreamEnvelope{
		Type:      types.EnvelopeChunk,
		SessionID: sessionID,
		MessageID: messageID,
		Data:      data,
	}
}

func stampedChunk(sessionID, messageID, delta string, ts time.Time) types.StreamEnvelope {
	env := chunk(sessionID, messageID, delta)
	env.TS = ts
	return env
}

// The live source retries on reconnect, so the same chunk can arrive
// twice. The second delivery must not double the message.
func TestRedeliveredChunkAppliesOnce(t *testing.T) {
	f := newFeedFixture(t)
	env := stampedChunk("s1", "m1", "Hello", f.clk.Now())

	f.feed.Apply(env)
	f.feed.Apply(env)
	f.feed.Apply(types.StreamEnvelope{Type: types.EnvelopeCompletion, SessionID: "s1"})

	ev, _ := f.store.Get("s1", "m1")
	if ev.Message.Content != "Hello" {
		t.Fatalf("redelivery doubled content: %q", ev.Message.Content)
	}
}

// Reconnects can also reorder chunks. Either arrival order must settle
// on the timestamp-ordered text.
func TestReorderedChunksConverge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deliveries := map[string][]types.StreamEnvelope{
		"in-order": {
			stampedChunk("s1", "m1", "Hello", t0),
			stampedChunk("s1", "m1", " world", t0.Add(time.Second)),
		},
		"reversed": {
			stampedChunk("s1", "m1", " world", t0.Add(time.Second)),
			stampedChunk("s1", "m1", "Hello", t0),
		},
	}
	for name, envs := range deliveries {
		f := newFeedFixture(t)
		for _, env := range envs {
			f.feed.Apply(env)
		}
		f.feed.Apply(types.StreamEnvelope{Type: types.EnvelopeCompletion, SessionID: "s1"})

		ev, _ := f.store.Get("s1", "m1")
		if ev.Message.Content != "Hello world" {
			t.Fatalf("%s: content %q, want %q", name, ev.Message.Content, "Hello world")
		}
	}
}

func TestApplyUpsertsSynchronously(t *testing.T) {
	f := newFeedFixture(t)
	f.feed.Apply(chunk("s1", "m1", "hi"))

	// Store mutation must not wait for the debounce.
	if f.store.Len("s1") != 1 {
		t.Fatalf("event not stored")
	}
	if f.batchCount() != 0 {
		t.Fatalf("notification must be debounced")
	}
}

func TestBurstCoalescesIntoOneBatch(t *testing.T) {
	f := newFeedFixture(t)
	opts := DefaultOptions()

	// Gaps stay below the pending delay, so the timer keeps resetting.
	f.feed.Apply(chunk("s1", "m1", "a"))
	f.clk.Advance(opts.FastDelay / 2)
	f.feed.Apply(chunk("s1", "m1", "b"))
	f.clk.Advance(opts.FastDelay / 2)
	f.feed.Apply(chunk("s1", "m1", "c"))

	f.clk.Advance(opts.SlowDelay * 2)
	if got := f.batchCount(); got != 1 {
		t.Fatalf("burst produced %d batches, want 1", got)
	}

	ev, _ := f.store.Get("s1", "m1")
	if ev.Message.Content != "abc" {
		t.Fatalf("content %q", ev.Message.Content)
	}
}

func TestTightGapUsesFastDelay(t *testing.T) {
	f := newFeedFixture(t)
	opts := DefaultOptions()

	f.feed.Apply(chunk("s1", "m1", "a"))
	f.clk.Advance(opts.FastGap / 4)
	f.feed.Apply(chunk("s1", "m1", "b"))

	f.clk.Advance(opts.FastDelay)
	if got := f.batchCount(); got != 1 {
		t.Fatalf("fast tier batch not delivered, got %d", got)
	}
}

func TestCompletionBypassesDebounce(t *testing.T) {
	f := newFeedFixture(t)

	f.feed.Apply(chunk("s1", "m1", "streaming"))
	f.feed.Apply(types.StreamEnvelope{Type: types.EnvelopeCompletion, SessionID: "s1"})

	// No clock advance: completion must notify immediately.
	if got := f.batchCount(); got != 1 {
		t.Fatalf("completion batches %d, want 1", got)
	}
	ev, _ := f.store.Get("s1", "m1")
	if ev.Message.Partial {
		t.Fatalf("completion must finalize partial messages")
	}
	if len(f.live.idle) == 0 {
		t.Fatalf("completion must mark the session idle")
	}
	f.clk.Advance(time.Minute)
	if got := f.batchCount(); got != 1 {
		t.Fatalf("stale debounce timer fired after completion")
	}
}

func TestChunkMarksAwaiting(t *testing.T) {
	f := newFeedFixture(t)
	f.feed.Apply(chunk("s1", "m1", "x"))
	if len(f.live.awaiting) != 1 {
		t.Fatalf("chunk must mark awaiting")
	}
}

func TestStatusEnvelopeRoutesToLiveness(t *testing.T) {
	f := newFeedFixture(t)
	data, _ := json.Marshal(types.StatusData{State: types.StatusStateIdle})
	f.feed.Apply(types.StreamEnvelope{Type: types.EnvelopeStatus, SessionID: "s1", Data: data})
	if len(f.live.idle) != 1 {
		t.Fatalf("idle status must mark idle")
	}
	if f.store.Len("s1") != 0 {
		t.Fatalf("status envelopes must not create events")
	}
}

func TestCloseFlushesPendingBatch(t *testing.T) {
	f := newFeedFixture(t)
	f.feed.Apply(chunk("s1", "m1", "pending"))

	f.feed.Close()
	if got := f.batchCount(); got != 1 {
		t.Fatalf("teardown dropped a pending batch")
	}
	if f.clk.Pending() != 0 {
		t.Fatalf("%d timers leaked past Close", f.clk.Pending())
	}

	f.feed.Apply(chunk("s1", "m2", "late"))
	if f.store.Len("s1") != 1 {
		t.Fatalf("events must not apply after Close")
	}
}

func TestFlushDeliversPendingImmediately(t *testing.T) {
	f := newFeedFixture(t)
	f.feed.Apply(chunk("s1", "m1", "x"))

	f.feed.Flush("s1")
	if got := f.batchCount(); got != 1 {
		t.Fatalf("flush batches %d, want 1", got)
	}
	f.clk.Advance(time.Minute)
	if got := f.batchCount(); got != 1 {
		t.Fatalf("flushed batch delivered twice")
	}
}

func TestEnvelopeWithoutSessionSkipped(t *testing.T) {
	f := newFeedFixture(t)
	f.feed.Apply(chunk("", "m1", "x"))
	if f.store.Len("") != 0 || f.store.Len("s1") != 0 {
		t.Fatalf("sessionless envelope must be dropped")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	f := newFeedFixture(t)
	calls := 0
	cancel := f.feed.Subscribe("s1", func(string) { calls++ })
	cancel()

	f.feed.Apply(chunk("s1", "m1", "x"))
	f.clk.Advance(time.Minute)
	if calls != 0 {
		t.Fatalf("unsubscribed observer notified")
	}
}
