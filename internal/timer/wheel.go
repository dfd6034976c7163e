// Package timer is a single-threaded timer wheel: named timers with
// duration + callback, a cooperative tick at >=1 Hz, and synchronous
// idempotent cancellation.
package timer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/clock"
)

// Callback runs when a timer fires. It must not block; callbacks run one
// after another on the wheel's tick goroutine, not on the goroutine that
// evaluates rules.
type Callback func()

type entry struct {
	name      string
	expiresAt time.Time
	callback  Callback
	metadata  map[string]string
}

// Wheel is the timer wheel. All methods are safe for concurrent use; the
// tick loop and callers of Start/Cancel/etc. serialize their access to the
// timer table through mu. Callbacks run after mu is released and are not
// serialized with rule evaluation.
type Wheel struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *zap.Logger
	timers  map[string]*entry
	tickDur time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates a Wheel ticking at the given interval; keep tickInterval at
// or under one second.
func New(c clock.Clock, logger *zap.Logger, tickInterval time.Duration) *Wheel {
	return &Wheel{
		clock:   c,
		logger:  logger,
		timers:  make(map[string]*entry),
		tickDur: tickInterval,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// StartTimer replaces any existing timer of the same name and schedules
// callback to fire at now + duration.
func (w *Wheel) StartTimer(name string, duration time.Duration, cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timers[name] = &entry{
		name:      name,
		expiresAt: w.clock.Now().Add(duration),
		callback:  cb,
	}
}

// CancelTimer removes a timer by name. Idempotent: cancelling an
// already-fired or never-existing timer is a no-op.
func (w *Wheel) CancelTimer(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.timers, name)
}

// HasTimer reports whether a timer with this name is currently scheduled.
func (w *Wheel) HasTimer(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[name]
	return ok
}

// GetRemainingTime returns how long until name fires, or false if no such
// timer exists.
func (w *Wheel) GetRemainingTime(name string) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.timers[name]
	if !ok {
		return 0, false
	}
	remaining := e.expiresAt.Sub(w.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Run starts the cooperative tick loop; it returns when Stop is called.
// Callbacks are invoked synchronously, in order of expiry, on the tick
// goroutine — never concurrently with each other.
func (w *Wheel) Run() {
	defer close(w.done)
	ticker := time.NewTicker(w.tickDur)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// ForceTick runs one tick synchronously without the Run loop, used by tests
// driving a clock.Fake instead of real wall-clock ticks.
func (w *Wheel) ForceTick() {
	w.tick()
}

func (w *Wheel) tick() {
	now := w.clock.Now()

	w.mu.Lock()
	var expired []*entry
	for name, e := range w.timers {
		if !e.expiresAt.After(now) {
			expired = append(expired, e)
			delete(w.timers, name)
		}
	}
	w.mu.Unlock()

	sortByExpiry(expired)

	for _, e := range expired {
		w.fire(e)
	}
}

func sortByExpiry(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].expiresAt.Before(entries[j-1].expiresAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// fire runs one callback, recovering a panic the way the Rule Engine
// recovers a rule panic: log it, drop the timer (it has already been
// removed), don't retry.
func (w *Wheel) fire(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("timer callback panicked",
				zap.String("timer", e.name),
				zap.Any("panic", r),
			)
		}
	}()
	e.callback()
}

// Count returns the number of timers currently scheduled, used by the
// status/diagnostics HTTP surface's /metrics handler.
func (w *Wheel) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Stop halts the tick loop and waits for it to exit.
func (w *Wheel) Stop() {
	close(w.stop)
	<-w.done
}
