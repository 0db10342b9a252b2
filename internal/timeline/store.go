// Package timeline holds the ordered, deduplicated, per-session event
// collections that every other component reads from and writes to.
package timeline

import (
	"sort"
	"strings"
	"sync"
	"time"

	"seam/internal/logging"
	"seam/internal/types"
)

const DefaultSessionCap = 50

// Store maps session ids to ordered event timelines. Upserts merge by
// event id. Writes take the write lock per event, so a reader never
// observes a half-merged event. The number of cached sessions is capped;
// the least-recently-active session is evicted when the cap is exceeded.
type Store struct {
	mu         sync.RWMutex
	logger     logging.Logger
	sessionCap int
	sessions   map[string]*sessionTimeline
	arrival    int
}

type sessionTimeline struct {
	order      []string
	events     map[string]*storedEvent
	lastActive time.Time
}

// storedEvent keeps a message's chunk fragments alongside the
// materialized event. Fragments carry their own timestamps so a
// duplicate delivery is recognized and skipped, and a late-arriving
// earlier chunk lands at its timestamp position instead of the end.
type storedEvent struct {
	event     *types.Event
	fragments []fragment
	seen      map[string]struct{}
}

type fragment struct {
	ts      time.Time
	seq     int
	content string
}

func NewStore(sessionCap int, logger logging.Logger) *Store {
	if sessionCap <= 0 {
		sessionCap = DefaultSessionCap
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		logger:     logger,
		sessionCap: sessionCap,
		sessions:   map[string]*sessionTimeline{},
	}
}

// Upsert inserts ev if its id is unseen in the session, otherwise merges
// it into the existing event. Message content accumulates as fragments:
// a fragment already applied (same timestamp and text) is skipped, so
// assimilation is idempotent, and the content reads back as the
// timestamp-ordered join, so the final state does not depend on arrival
// order. The partial flag follows the incoming value but never flips
// back to true once false; other payload fields are replaced wholesale.
func (s *Store) Upsert(ev *types.Event) {
	if ev == nil || ev.ID == "" || ev.SessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[ev.SessionID]
	if !ok {
		s.evictForLocked(ev.SessionID)
		session = &sessionTimeline{events: map[string]*storedEvent{}}
		s.sessions[ev.SessionID] = session
	}
	session.lastActive = activityTime(ev)

	existing, seen := session.events[ev.ID]
	if !seen {
		s.arrival++
		stored := &storedEvent{event: types.CloneEvent(ev)}
		stored.event.Arrival = s.arrival
		if stored.event.Message != nil {
			stored.addFragment(ev.Timestamp, ev.Message.Content)
			stored.materialize()
		}
		session.events[ev.ID] = stored
		session.order = append(session.order, ev.ID)
		return
	}
	mergeEvent(existing, ev)
}

func mergeEvent(dst *storedEvent, src *types.Event) {
	if src.Role != "" {
		dst.event.Role = src.Role
	}
	switch {
	case src.Message != nil:
		if dst.event.Message == nil {
			dst.event.Kind = types.EventKindMessage
			dst.event.Message = &types.MessagePayload{Partial: src.Message.Partial}
			dst.fragments = nil
			dst.seen = nil
		} else {
			// Monotonic: once a message finalizes it stays final.
			dst.event.Message.Partial = dst.event.Message.Partial && src.Message.Partial
		}
		dst.addFragment(src.Timestamp, src.Message.Content)
		dst.materialize()
	case src.ToolCall != nil:
		call := *src.ToolCall
		dst.event.ToolCall = &call
		dst.event.Kind = types.EventKindToolCall
	case src.ToolResult != nil:
		result := *src.ToolResult
		dst.event.ToolResult = &result
		dst.event.Kind = types.EventKindToolResult
	}
}

// addFragment records one chunk's content. A fragment with a timestamp
// and text already applied is a redelivery and is dropped.
func (se *storedEvent) addFragment(ts time.Time, content string) {
	key := ts.UTC().Format(time.RFC3339Nano) + "\x1f" + content
	if se.seen == nil {
		se.seen = map[string]struct{}{}
	}
	if _, dup := se.seen[key]; dup {
		return
	}
	se.seen[key] = struct{}{}
	se.fragments = append(se.fragments, fragment{ts: ts, seq: len(se.fragments), content: content})
}

// materialize rebuilds Content as the (timestamp, arrival)-ordered join
// of the fragments and anchors the event at its earliest fragment.
func (se *storedEvent) materialize() {
	sort.SliceStable(se.fragments, func(i, j int) bool {
		if se.fragments[i].ts.Equal(se.fragments[j].ts) {
			return se.fragments[i].seq < se.fragments[j].seq
		}
		return se.fragments[i].ts.Before(se.fragments[j].ts)
	})
	var b strings.Builder
	for _, f := range se.fragments {
		b.WriteString(f.content)
	}
	se.event.Message.Content = b.String()
	if len(se.fragments) > 0 && se.fragments[0].ts.Before(se.event.Timestamp) {
		se.event.Timestamp = se.fragments[0].ts
	}
}

// Session returns a chronologically ordered snapshot of the session's
// events (timestamp order, arrival order on ties). The snapshot is a
// deep copy; callers may hold it across later writes.
func (s *Store) Session(sessionID string) []*types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*types.Event, 0, len(session.order))
	for _, id := range session.order {
		if stored, ok := session.events[id]; ok {
			out = append(out, types.CloneEvent(stored.event))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Arrival < out[j].Arrival
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Get returns a copy of one event.
func (s *Store) Get(sessionID, id string) (*types.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	stored, ok := session.events[id]
	if !ok {
		return nil, false
	}
	return types.CloneEvent(stored.event), true
}

// MarkComplete forces every partial message in the session to
// partial=false. Returns true when at least one event changed.
func (s *Store) MarkComplete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	changed := false
	for _, stored := range session.events {
		if stored.event.Message != nil && stored.event.Message.Partial {
			stored.event.Message.Partial = false
			changed = true
		}
	}
	return changed
}

// HasPartial reports whether any message event in the session is still
// awaiting deltas. Used by the liveness watchdog.
func (s *Store) HasPartial(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	for _, stored := range session.events {
		if stored.event.Message != nil && stored.event.Message.Partial {
			return true
		}
	}
	return false
}

// Remove deletes one event from a session.
func (s *Store) Remove(sessionID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := session.events[id]; !ok {
		return
	}
	delete(session.events, id)
	for i, existing := range session.order {
		if existing == id {
			session.order = append(session.order[:i], session.order[i+1:]...)
			break
		}
	}
}

// EvictSession drops a whole session's timeline atomically.
func (s *Store) EvictSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sessions lists the cached session ids, most recently active first.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		left := s.sessions[out[i]].lastActive
		right := s.sessions[out[j]].lastActive
		if left.Equal(right) {
			return out[i] < out[j]
		}
		return left.After(right)
	})
	return out
}

// Len returns the number of events held for a session.
func (s *Store) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(session.events)
}

// evictForLocked makes room for a new session. The session being
// written (incoming) is never the eviction candidate.
func (s *Store) evictForLocked(incoming string) {
	if len(s.sessions) < s.sessionCap {
		return
	}
	oldest := ""
	var oldestActive time.Time
	for id, session := range s.sessions {
		if id == incoming {
			continue
		}
		if oldest == "" || session.lastActive.Before(oldestActive) {
			oldest = id
			oldestActive = session.lastActive
		}
	}
	if oldest == "" {
		return
	}
	delete(s.sessions, oldest)
	s.logger.Debug("evicted least-recently-active session",
		logging.F("session_id", oldest),
		logging.F("last_active", oldestActive),
	)
}

func activityTime(ev *types.Event) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return time.Now().UTC()
}
