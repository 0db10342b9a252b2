// Package session wires the engine together for callers: one live and
// one persisted timeline store, the merge feed between the live source
// and its store, the liveness tracker, and factories for verification
// and replay over the pair.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seam/internal/clock"
	"seam/internal/liveness"
	"seam/internal/logging"
	"seam/internal/normalize"
	"seam/internal/replay"
	"seam/internal/stream"
	"seam/internal/timeline"
	"seam/internal/types"
	"seam/internal/verify"
)

// RecordSource supplies persisted conversation records. Satisfied by
// both *store.Store (local bbolt) and *client.Client (remote fetch).
type RecordSource interface {
	Records(ctx context.Context, sessionID string) ([]types.Record, error)
}

type Options struct {
	SessionCap       int
	Stream           stream.Options
	WatchdogInterval time.Duration
	MinStep          time.Duration
	Speed            float64
}

type Manager struct {
	mu        sync.Mutex
	logger    logging.Logger
	clk       clock.Clock
	opts      Options
	live      *timeline.Store
	persisted *timeline.Store
	norm      *normalize.Normalizer
	feed      *stream.Feed
	tracker   *liveness.Tracker
	records   RecordSource

	arrival map[string]int
	players []*replay.Player
	closed  bool
}

func NewManager(records RecordSource, clk clock.Clock, opts Options, logger logging.Logger) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	norm := normalize.New(logger.With(logging.F("component", "normalize")))
	live := timeline.NewStore(opts.SessionCap, logger.With(logging.F("component", "timeline"), logging.F("source", "live")))
	persisted := timeline.NewStore(opts.SessionCap, logger.With(logging.F("component", "timeline"), logging.F("source", "persisted")))
	tracker := liveness.NewTracker(live, clk, opts.WatchdogInterval, logger.With(logging.F("component", "liveness")))
	feed := stream.NewFeed(live, norm, tracker, clk, opts.Stream, logger.With(logging.F("component", "stream")))
	return &Manager{
		logger:    logger,
		clk:       clk,
		opts:      opts,
		live:      live,
		persisted: persisted,
		norm:      norm,
		feed:      feed,
		tracker:   tracker,
		records:   records,
		arrival:   map[string]int{},
	}
}

// Start launches the liveness watchdog.
func (m *Manager) Start() {
	m.tracker.Start()
}

// Apply feeds one live envelope into the engine.
func (m *Manager) Apply(env types.StreamEnvelope) {
	m.feed.Apply(env)
}

// Subscribe registers a batch observer for a session's live timeline.
func (m *Manager) Subscribe(sessionID string, fn func(sessionID string)) func() {
	return m.feed.Subscribe(sessionID, fn)
}

// Flush forces any pending notification batch out, e.g. when the viewer
// switches sessions.
func (m *Manager) Flush(sessionID string) {
	m.feed.Flush(sessionID)
}

// Timeline returns the ordered snapshot for one source of a session.
func (m *Manager) Timeline(sessionID string, source types.Source) []*types.Event {
	if source == types.SourcePersisted {
		return m.persisted.Session(sessionID)
	}
	return m.live.Session(sessionID)
}

// State returns the session's liveness state.
func (m *Manager) State(sessionID string) types.LivenessState {
	return m.tracker.State(sessionID)
}

// SubscribeLiveness registers an observer for liveness transitions.
func (m *Manager) SubscribeLiveness(fn func(sessionID string, state types.LivenessState)) {
	m.tracker.Subscribe(fn)
}

// LoadPersisted rebuilds the persisted timeline for a session from the
// record source. Returns the number of events produced.
func (m *Manager) LoadPersisted(ctx context.Context, sessionID string) (int, error) {
	records, err := m.records.Records(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load persisted records: %w", err)
	}

	m.persisted.EvictSession(sessionID)
	count := 0
	for _, rec := range records {
		m.mu.Lock()
		base := m.arrival[sessionID]
		m.arrival[sessionID] = base + len(rec.Content)
		m.mu.Unlock()

		for _, ev := range m.norm.FromRecord(rec, base) {
			ev.SessionID = sessionID
			m.persisted.Upsert(ev)
			count++
		}
	}
	m.logger.Debug("persisted timeline loaded",
		logging.F("session_id", sessionID),
		logging.F("records", len(records)),
		logging.F("events", count),
	)
	return count, nil
}

// Verify compares the session's live and persisted tool activity. The
// persisted timeline is loaded on demand when empty.
func (m *Manager) Verify(ctx context.Context, sessionID string) (*types.VerifyResult, error) {
	if m.persisted.Len(sessionID) == 0 {
		if _, err := m.LoadPersisted(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	live := m.live.Session(sessionID)
	persisted := m.persisted.Session(sessionID)
	return verify.Compare(sessionID, live, persisted), nil
}

// NewReplay builds a player over the session's current snapshots. The
// caller drives it through its hooks; Close on the manager closes every
// player it handed out.
func (m *Manager) NewReplay(ctx context.Context, sessionID string, mode types.ReplayMode, hooks replay.Hooks) (*replay.Player, error) {
	if mode != types.ReplayModeLiveOnly && m.persisted.Len(sessionID) == 0 {
		if _, err := m.LoadPersisted(ctx, sessionID); err != nil {
			// A session may exist only on the live side; replay what we
			// have and note the gap.
			m.logger.Warn("replay without persisted timeline",
				logging.F("session_id", sessionID),
				logging.F("error", err),
			)
		}
	}
	events := m.live.Session(sessionID)
	events = append(events, m.persisted.Session(sessionID)...)
	if len(events) == 0 {
		return nil, fmt.Errorf("replay %s: no events in either source", sessionID)
	}

	player := replay.NewPlayer(m.clk, m.opts.MinStep, m.logger.With(logging.F("component", "replay")), hooks)
	player.SetMode(mode)
	if m.opts.Speed > 0 {
		player.SetSpeed(m.opts.Speed)
	}
	player.Prepare(events)

	m.mu.Lock()
	m.players = append(m.players, player)
	m.mu.Unlock()
	return player, nil
}

// Evict drops a session from both timeline stores and the tracker.
func (m *Manager) Evict(sessionID string) {
	m.live.EvictSession(sessionID)
	m.persisted.EvictSession(sessionID)
	m.tracker.Forget(sessionID)
	m.mu.Lock()
	delete(m.arrival, sessionID)
	m.mu.Unlock()
}

// Close flushes pending batches and stops every timer the manager owns.
// Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	players := m.players
	m.players = nil
	m.mu.Unlock()

	m.feed.Close()
	m.tracker.Close()
	for _, p := range players {
		p.Close()
	}
}
