package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manual clock. Advance moves time forward and fires any
// timers and tickers that come due, in order. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	timers  map[int]*fakeTimer
	tickers map[int]*fakeTicker
}

func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		timers:  map[int]*fakeTimer{},
		tickers: map[int]*fakeTicker{},
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	timer := &fakeTimer{clock: f, id: f.seq, at: f.now.Add(d), fn: fn}
	f.timers[timer.id] = timer
	return timer
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ticker := &fakeTicker{clock: f, id: f.seq, every: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers[ticker.id] = ticker
	return ticker
}

// Advance moves the clock forward by d, firing due timers and ticker
// sends. Timer callbacks run without the clock lock held so they may
// schedule further timers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		timer := f.nextDueLocked(target)
		if timer == nil {
			break
		}
		if timer.at.After(f.now) {
			f.now = timer.at
		}
		delete(f.timers, timer.id)
		f.mu.Unlock()
		timer.fn()
		f.mu.Lock()
	}
	f.now = target
	for _, ticker := range f.tickers {
		for !ticker.next.After(target) {
			select {
			case ticker.ch <- ticker.next:
			default:
			}
			ticker.next = ticker.next.Add(ticker.every)
		}
	}
	f.mu.Unlock()
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(f.timers))
	for _, timer := range f.timers {
		if !timer.at.After(target) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// Pending reports how many timers are armed. Used by tests to assert no
// timer leaks after teardown.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTimer struct {
	clock *Fake
	id    int
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

type fakeTicker struct {
	clock *Fake
	id    int
	every time.Duration
	next  time.Time
	ch    chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t.id)
}
