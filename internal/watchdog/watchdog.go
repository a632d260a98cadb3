package watchdog

import (
	"sync"
	"time"
)

// Watchdog keeps one timer per match and fires when that match's running clock
// should have reached zero. The callback runs on its own goroutine.
type Watchdog struct {
	mu     sync.Mutex
	timers map[string]*entry
	fire   func(matchID string)
	now    func() time.Time
	after  func(d time.Duration, f func()) stopper
}

type entry struct {
	gen   uint64
	timer stopper
}

type stopper interface{ Stop() bool }

type Option func(*Watchdog)

func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

func New(fire func(matchID string), opts ...Option) *Watchdog {
	w := &Watchdog{
		timers: make(map[string]*entry),
		fire:   fire,
		now:    time.Now,
		after:  func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Arm replaces any timer for matchID with one expiring at deadline.
func (w *Watchdog) Arm(matchID string, deadline time.Time) {
	d := deadline.Sub(w.now())
	if d < 0 {
		d = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var gen uint64 = 1
	if old, ok := w.timers[matchID]; ok {
		old.timer.Stop()
		gen = old.gen + 1
	}
	e := &entry{gen: gen}
	e.timer = w.after(d, func() { w.expire(matchID, gen) })
	w.timers[matchID] = e
}

// Disarm stops the timer for matchID. A callback already running is not interrupted.
func (w *Watchdog) Disarm(matchID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.timers[matchID]; ok {
		e.timer.Stop()
		delete(w.timers, matchID)
	}
}

func (w *Watchdog) Armed(matchID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[matchID]
	return ok
}

func (w *Watchdog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Stop disarms everything.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range w.timers {
		e.timer.Stop()
		delete(w.timers, id)
	}
}

func (w *Watchdog) expire(matchID string, gen uint64) {
	w.mu.Lock()
	e, ok := w.timers[matchID]
	if !ok || e.gen != gen {
		// re-armed or disarmed after this timer was already due
		w.mu.Unlock()
		return
	}
	delete(w.timers, matchID)
	w.mu.Unlock()
	if w.fire != nil {
		w.fire(matchID)
	}
}
