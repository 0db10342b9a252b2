// Package stream absorbs the bursty live event stream: every envelope is
// applied to the timeline store synchronously, while observer
// notifications are debounced into coalesced batches at an adaptive
// cadence.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"seam/internal/clock"
	"seam/internal/logging"
	"seam/internal/normalize"
	"seam/internal/timeline"
	"seam/internal/types"
)

// Liveness receives the activity signals the engine derives from event
// semantics. Satisfied by *liveness.Tracker.
type Liveness interface {
	MarkAwaiting(sessionID string)
	MarkIdle(sessionID string)
}

// Options hold the adaptive debounce policy. Tight event gaps use the
// fast delay (streaming wants responsiveness), long gaps the slow delay
// (sparse sessions want fewer redundant notifications).
type Options struct {
	FastDelay    time.Duration
	DefaultDelay time.Duration
	SlowDelay    time.Duration
	FastGap      time.Duration
	SlowGap      time.Duration
}

func DefaultOptions() Options {
	return Options{
		FastDelay:    40 * time.Millisecond,
		DefaultDelay: 120 * time.Millisecond,
		SlowDelay:    400 * time.Millisecond,
		FastGap:      100 * time.Millisecond,
		SlowGap:      2 * time.Second,
	}
}

type Feed struct {
	mu       sync.Mutex
	store    *timeline.Store
	norm     *normalize.Normalizer
	liveness Liveness
	clk      clock.Clock
	opts     Options
	logger   logging.Logger

	arrival  int
	subSeq   int
	subs     map[string]map[int]func(sessionID string)
	sessions map[string]*sessionBatch
	closed   bool
}

type sessionBatch struct {
	timer     clock.Timer
	pending   bool
	lastEvent time.Time
}

func NewFeed(store *timeline.Store, norm *normalize.Normalizer, live Liveness, clk clock.Clock, opts Options, logger logging.Logger) *Feed {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.DefaultDelay <= 0 {
		opts = DefaultOptions()
	}
	return &Feed{
		store:    store,
		norm:     norm,
		liveness: live,
		clk:      clk,
		opts:     opts,
		logger:   logger,
		subs:     map[string]map[int]func(string){},
		sessions: map[string]*sessionBatch{},
	}
}

// Subscribe registers an observer for one session, invoked once per
// coalesced batch (or immediately for completion signals). The returned
// func unsubscribes.
func (f *Feed) Subscribe(sessionID string, fn func(sessionID string)) func() {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	id := f.subSeq
	if f.subs[sessionID] == nil {
		f.subs[sessionID] = map[int]func(string){}
	}
	f.subs[sessionID][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[sessionID], id)
	}
}

// Apply assimilates one envelope. Store mutation is synchronous and
// immediate; only the observer notification is deferred.
func (f *Feed) Apply(env types.StreamEnvelope) {
	if env.SessionID == "" {
		f.logger.Warn("envelope missing session id skipped",
			logging.F("type", env.Type),
		)
		return
	}

	switch env.Type {
	case types.EnvelopeCompletion:
		f.applyCompletion(env.SessionID)
	case types.EnvelopeStatus:
		f.applyStatus(env)
	default:
		f.applyEvent(env)
	}
}

func (f *Feed) applyEvent(env types.StreamEnvelope) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.arrival++
	now := f.clk.Now()
	ev := f.norm.FromEnvelope(env, f.arrival, now)
	if ev == nil {
		f.mu.Unlock()
		return
	}
	ev.SessionID = env.SessionID
	f.store.Upsert(ev)

	batch := f.batchLocked(env.SessionID)
	gap := now.Sub(batch.lastEvent)
	if batch.lastEvent.IsZero() {
		gap = f.opts.SlowGap
	}
	batch.lastEvent = now
	batch.pending = true
	f.armLocked(env.SessionID, batch, f.delayFor(gap))
	f.mu.Unlock()

	if env.Type == types.EnvelopeChunk && f.liveness != nil {
		f.liveness.MarkAwaiting(env.SessionID)
	}
}

func (f *Feed) applyCompletion(sessionID string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	changed := f.store.MarkComplete(sessionID)
	batch := f.batchLocked(sessionID)
	hadPending := batch.pending
	batch.pending = false
	if batch.timer != nil {
		batch.timer.Stop()
		batch.timer = nil
	}
	f.mu.Unlock()

	if f.liveness != nil {
		f.liveness.MarkIdle(sessionID)
	}
	// Completion bypasses the debounce so the finalized transcript is
	// visible at once.
	if changed || hadPending {
		f.notify(sessionID)
	}
}

func (f *Feed) applyStatus(env types.StreamEnvelope) {
	var data types.StatusData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			f.logger.Warn("malformed status envelope skipped",
				logging.F("session_id", env.SessionID),
				logging.F("error", err),
			)
			return
		}
	}
	if f.liveness == nil {
		return
	}
	switch data.State {
	case types.StatusStateIdle:
		f.liveness.MarkIdle(env.SessionID)
	case types.StatusStateActive:
		f.liveness.MarkAwaiting(env.SessionID)
	}
}

// Close flushes every pending batch synchronously and cancels all
// timers. No event's effect is silently dropped on teardown.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	flush := make([]string, 0, len(f.sessions))
	for sessionID, batch := range f.sessions {
		if batch.timer != nil {
			batch.timer.Stop()
			batch.timer = nil
		}
		if batch.pending {
			batch.pending = false
			flush = append(flush, sessionID)
		}
	}
	f.mu.Unlock()

	for _, sessionID := range flush {
		f.notify(sessionID)
	}
}

// Flush forces any pending batch for the session to notify now. Used on
// session switches.
func (f *Feed) Flush(sessionID string) {
	f.mu.Lock()
	batch, ok := f.sessions[sessionID]
	if !ok || !batch.pending {
		f.mu.Unlock()
		return
	}
	batch.pending = false
	if batch.timer != nil {
		batch.timer.Stop()
		batch.timer = nil
	}
	f.mu.Unlock()
	f.notify(sessionID)
}

func (f *Feed) delayFor(gap time.Duration) time.Duration {
	switch {
	case gap < f.opts.FastGap:
		return f.opts.FastDelay
	case gap > f.opts.SlowGap:
		return f.opts.SlowDelay
	default:
		return f.opts.DefaultDelay
	}
}

func (f *Feed) batchLocked(sessionID string) *sessionBatch {
	batch, ok := f.sessions[sessionID]
	if !ok {
		batch = &sessionBatch{}
		f.sessions[sessionID] = batch
	}
	return batch
}

// armLocked cancels and reschedules the single pending timer for the
// session; timers for one session never overlap.
func (f *Feed) armLocked(sessionID string, batch *sessionBatch, delay time.Duration) {
	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.timer = f.clk.AfterFunc(delay, func() {
		f.mu.Lock()
		current, ok := f.sessions[sessionID]
		if !ok || !current.pending {
			f.mu.Unlock()
			return
		}
		current.pending = false
		current.timer = nil
		f.mu.Unlock()
		f.notify(sessionID)
	})
}

func (f *Feed) notify(sessionID string) {
	f.mu.Lock()
	callbacks := make([]func(string), 0, len(f.subs[sessionID]))
	for _, fn := range f.subs[sessionID] {
		callbacks = append(callbacks, fn)
	}
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(sessionID)
	}
}
