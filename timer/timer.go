// Package timer provides the one-shot, cancellable, labeled delay used
// to drive the routing table's per-entry TIMEOUT and GARBAGE clocks and
// the daemon's periodic UPDATE tick.
package timer

import (
	"sync"
	"time"
)

// Kind labels why a Timer was armed. It drives no behavior on its own;
// it exists so a Timer can be rendered (snapshot output) and so callers
// can check invariants like "every non-self entry carries exactly one
// timer, and its kind matches its metric" without threading a separate
// enum alongside every Timer.
type Kind int

const (
	// Timeout marks a route considered alive; expiry means no
	// refreshing advertisement arrived within the window.
	Timeout Kind = iota
	// Garbage marks an already-poisoned route awaiting removal.
	Garbage
	// Update marks the periodic advertisement driver, not tied to any
	// table entry.
	Update
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "TIMEOUT"
	case Garbage:
		return "GARBAGE"
	case Update:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Timer wraps a time.Timer with a Kind label and the bookkeeping needed
// to report elapsed/remaining time. Timers fire once; Reset re-arms one
// that has already fired or been cancelled.
type Timer struct {
	mu      sync.Mutex
	kind    Kind
	delay   time.Duration
	armedAt time.Time
	t       *time.Timer
	running bool
}

// Schedule arms a new Timer of the given kind, invoking f after delay
// elapses. f runs on its own goroutine, as with time.AfterFunc; callers
// that mutate shared state from f must serialize through their own
// discipline (rib.Table guards every mutation with a mutex).
func Schedule(delay time.Duration, kind Kind, f func()) *Timer {
	ts := &Timer{
		kind:    kind,
		delay:   delay,
		armedAt: time.Now(),
		running: true,
	}
	ts.t = time.AfterFunc(delay, func() {
		ts.mu.Lock()
		ts.running = false
		ts.mu.Unlock()
		f()
	})
	return ts
}

// Kind reports what this timer is for.
func (t *Timer) Kind() Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind
}

// Cancel stops the timer. A callback already in flight when Cancel is
// called is not interrupted; callers must tolerate a stale firing (see
// rib.Table.fireTimeout / fireGarbage, which re-check entry membership and
// timer identity before acting).
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.t.Stop()
	t.running = false
}

// Reset cancels the timer if still pending and re-arms it with a fresh
// delay and kind, resetting the elapsed-time origin.
func (t *Timer) Reset(delay time.Duration, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.t.Stop()
	t.kind = kind
	t.delay = delay
	t.armedAt = time.Now()
	t.running = true
	t.t.Reset(delay)
}

// Running reports whether the timer has neither fired nor been
// cancelled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Elapsed returns how long the timer has been running since it was
// last armed or reset.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.armedAt)
}

// Remaining returns the time left before the timer fires, floored at
// zero once it has already fired.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.delay - time.Since(t.armedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
