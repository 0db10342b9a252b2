// Package liveness derives an idle/awaiting state per session from
// event semantics alone: content deltas imply activity, completion
// markers imply idleness, and a watchdog guards against missed
// completions.
package liveness

import (
	"sync"
	"time"

	"seam/internal/clock"
	"seam/internal/logging"
	"seam/internal/types"
)

const DefaultWatchdogInterval = 5 * time.Second

// PartialReader reports whether a session still holds partial messages.
// Satisfied by *timeline.Store.
type PartialReader interface {
	HasPartial(sessionID string) bool
}

// Tracker is the only component authorized to mutate session liveness
// state.
type Tracker struct {
	mu       sync.Mutex
	states   map[string]types.LivenessState
	subs     []func(sessionID string, state types.LivenessState)
	partials PartialReader
	clk      clock.Clock
	interval time.Duration
	logger   logging.Logger
	ticker   clock.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func NewTracker(partials PartialReader, clk clock.Clock, interval time.Duration, logger logging.Logger) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		states:   map[string]types.LivenessState{},
		partials: partials,
		clk:      clk,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the watchdog. It periodically forces awaiting sessions
// back to idle when no message event is still partial, covering missed
// or malformed completion signals.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.ticker != nil {
		t.mu.Unlock()
		return
	}
	t.ticker = t.clk.NewTicker(t.interval)
	ticker := t.ticker
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C():
				t.sweep()
			}
		}
	}()
}

// Close stops the watchdog. Idempotent.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		if t.ticker != nil {
			t.ticker.Stop()
			t.ticker = nil
		}
		t.mu.Unlock()
	})
}

// MarkAwaiting records that a content-bearing delta arrived.
func (t *Tracker) MarkAwaiting(sessionID string) {
	t.set(sessionID, types.LivenessAwaiting)
}

// MarkIdle records an explicit completion or idle-status signal.
func (t *Tracker) MarkIdle(sessionID string) {
	t.set(sessionID, types.LivenessIdle)
}

// State returns the current liveness state; untracked sessions are idle.
func (t *Tracker) State(sessionID string) types.LivenessState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.states[sessionID]; ok {
		return state
	}
	return types.LivenessIdle
}

// Subscribe registers an observer notified on every state transition.
func (t *Tracker) Subscribe(fn func(sessionID string, state types.LivenessState)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Forget drops tracking state for an evicted session.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, sessionID)
}

func (t *Tracker) set(sessionID string, state types.LivenessState) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	previous, tracked := t.states[sessionID]
	if tracked && previous == state {
		t.mu.Unlock()
		return
	}
	t.states[sessionID] = state
	subs := append([]func(string, types.LivenessState){}, t.subs...)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(sessionID, state)
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	awaiting := make([]string, 0, len(t.states))
	for sessionID, state := range t.states {
		if state == types.LivenessAwaiting {
			awaiting = append(awaiting, sessionID)
		}
	}
	t.mu.Unlock()

	for _, sessionID := range awaiting {
		if t.partials != nil && t.partials.HasPartial(sessionID) {
			continue
		}
		t.logger.Debug("watchdog forcing idle",
			logging.F("session_id", sessionID),
		)
		t.set(sessionID, types.LivenessIdle)
	}
}
