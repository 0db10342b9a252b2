// Package replay re-emits a prepared event sequence on a speed-scaled
// schedule. Replay is an emission schedule over events that already
// happened; the player never re-runs tools or re-fetches anything.
package replay

import (
	"sort"
	"sync"
	"time"

	"seam/internal/clock"
	"seam/internal/logging"
	"seam/internal/types"
)

const (
	DefaultMinStep = 10 * time.Millisecond
	DefaultSpeed   = 1.0
)

// Hooks are the player's only output path. OnEvent names the per-source
// buffer the event lands in; OnReset tells the owner to clear both
// buffers; OnFinished fires once when the sequence is exhausted.
// Hooks are invoked without the player lock held.
type Hooks struct {
	OnEvent    func(source types.Source, ev types.ReplayEvent)
	OnReset    func()
	OnFinished func()
}

type Player struct {
	mu      sync.Mutex
	clk     clock.Clock
	logger  logging.Logger
	hooks   Hooks
	minStep time.Duration

	prepared []types.ReplayEvent
	index    int
	speed    float64
	mode     types.ReplayMode
	playing  bool
	timer    clock.Timer
	closed   bool

	// Pause bookkeeping: when the step timer was armed and for how
	// long, so a pause mid-delay resumes with the remainder instead of
	// restarting the full inter-event gap.
	armedAt   time.Time
	armedFor  time.Duration
	remaining time.Duration
}

func NewPlayer(clk clock.Clock, minStep time.Duration, logger logging.Logger, hooks Hooks) *Player {
	if clk == nil {
		clk = clock.System()
	}
	if minStep <= 0 {
		minStep = DefaultMinStep
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Player{
		clk:     clk,
		logger:  logger,
		hooks:   hooks,
		minStep: minStep,
		speed:   DefaultSpeed,
		mode:    types.ReplayModeBoth,
	}
}

// Prepare sorts the events chronologically (arrival order on equal
// timestamps) and computes each event's offset from the first. Any
// running playback stops and position rewinds to the start.
func (p *Player) Prepare(events []*types.Event) {
	prepared := make([]types.ReplayEvent, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		prepared = append(prepared, types.ReplayEvent{Event: types.CloneEvent(ev)})
	}
	sort.SliceStable(prepared, func(i, j int) bool {
		left, right := prepared[i].Event, prepared[j].Event
		if left.Timestamp.Equal(right.Timestamp) {
			return left.Arrival < right.Arrival
		}
		return left.Timestamp.Before(right.Timestamp)
	})
	var origin time.Time
	for i := range prepared {
		prepared[i].OriginalIndex = i
		if i == 0 {
			origin = prepared[i].Event.Timestamp
		}
		prepared[i].RelativeMs = prepared[i].Event.Timestamp.Sub(origin).Milliseconds()
	}

	p.mu.Lock()
	p.stopTimerLocked()
	p.prepared = prepared
	p.index = 0
	p.playing = false
	p.remaining = 0
	p.mu.Unlock()

	p.logger.Debug("replay prepared",
		logging.F("events", len(prepared)),
	)
}

// Play starts or resumes emission from the current position. Playing an
// exhausted or empty sequence is a no-op.
func (p *Player) Play() {
	p.mu.Lock()
	if p.closed || p.playing || p.index >= len(p.prepared) {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.armLocked()
	p.mu.Unlock()
}

// Pause stops the step timer and records how much of the current delay
// is left. Position is retained; Play resumes from the same index and
// waits only the remainder.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.playing && p.timer != nil {
		elapsed := p.clk.Now().Sub(p.armedAt)
		if rem := p.armedFor - elapsed; rem > 0 {
			p.remaining = rem
		}
	}
	p.playing = false
	p.stopTimerLocked()
	p.mu.Unlock()
}

// Reset stops playback, rewinds to the start and asks the owner to
// clear both source buffers.
func (p *Player) Reset() {
	p.mu.Lock()
	p.playing = false
	p.stopTimerLocked()
	p.index = 0
	p.remaining = 0
	p.mu.Unlock()

	if p.hooks.OnReset != nil {
		p.hooks.OnReset()
	}
}

// SeekTo jumps to position i (clamped to [0, len]): buffers are cleared
// and every event before i is re-emitted synchronously, honoring the
// current source filter. Playback state is preserved across the seek.
func (p *Player) SeekTo(i int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if i < 0 {
		i = 0
	}
	if i > len(p.prepared) {
		i = len(p.prepared)
	}
	wasPlaying := p.playing
	p.playing = false
	p.stopTimerLocked()
	p.remaining = 0
	replaying := make([]types.ReplayEvent, i)
	copy(replaying, p.prepared[:i])
	p.index = i
	mode := p.mode
	p.mu.Unlock()

	if p.hooks.OnReset != nil {
		p.hooks.OnReset()
	}
	for _, rev := range replaying {
		p.emit(mode, rev)
	}

	if wasPlaying {
		p.Play()
	}
}

// SetSpeed changes the playback multiplier. It applies from the next
// scheduled step; a step already in flight keeps its delay.
func (p *Player) SetSpeed(speed float64) {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
}

// SetMode switches the source filter. A mode change invalidates the
// buffers, so it implies Reset.
func (p *Player) SetMode(mode types.ReplayMode) {
	p.mu.Lock()
	if mode == p.mode {
		p.mu.Unlock()
		return
	}
	p.mode = mode
	p.mu.Unlock()
	p.Reset()
}

// Close stops playback permanently. Idempotent; no timer survives it.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.playing = false
	p.stopTimerLocked()
	p.mu.Unlock()
}

// Index returns the position of the next event to emit.
func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prepared)
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *Player) Mode() types.ReplayMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// armLocked schedules the step for prepared[index]. A remainder left by
// Pause is consumed as-is; otherwise the delay is the scaled original
// inter-event gap, floored at minStep so zero-gap bursts stay
// observable.
func (p *Player) armLocked() {
	delay := p.remaining
	p.remaining = 0
	if delay <= 0 {
		dt := time.Duration(0)
		if p.index > 0 {
			gapMs := p.prepared[p.index].RelativeMs - p.prepared[p.index-1].RelativeMs
			dt = time.Duration(gapMs) * time.Millisecond
		}
		delay = time.Duration(float64(dt) / p.speed)
		if delay < p.minStep {
			delay = p.minStep
		}
	}
	p.armedAt = p.clk.Now()
	p.armedFor = delay
	p.timer = p.clk.AfterFunc(delay, p.step)
}

func (p *Player) step() {
	p.mu.Lock()
	if p.closed || !p.playing || p.index >= len(p.prepared) {
		p.playing = p.playing && p.index < len(p.prepared)
		p.mu.Unlock()
		return
	}
	rev := p.prepared[p.index]
	mode := p.mode
	// Filtered-out events still advance the position, so seeking and
	// progress reporting are mode-independent.
	p.index++
	finished := p.index >= len(p.prepared)
	if finished {
		p.playing = false
		p.timer = nil
	} else {
		p.armLocked()
	}
	p.mu.Unlock()

	p.emit(mode, rev)
	if finished && p.hooks.OnFinished != nil {
		p.hooks.OnFinished()
	}
}

func (p *Player) emit(mode types.ReplayMode, rev types.ReplayEvent) {
	if p.hooks.OnEvent == nil || rev.Event == nil {
		return
	}
	if !mode.Includes(rev.Event.Source) {
		return
	}
	p.hooks.OnEvent(rev.Event.Source, rev)
}

func (p *Player) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
