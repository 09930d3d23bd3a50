// Package clock abstracts time for components that schedule work, so tests
// can drive timers deterministically instead of sleeping.
package clock

import "time"

// Clock is the time surface used by debounce and sweep loops.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, fn func()) *Timer
	NewTicker(d time.Duration) *Ticker
	Sleep(d time.Duration)
}

// Timer mirrors time.Timer for both real and fake clocks.
type Timer struct {
	C <-chan time.Time

	stopFunc  func() bool
	resetFunc func(d time.Duration) bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Reset re-arms the timer to fire after d.
func (t *Timer) Reset(d time.Duration) bool {
	if t == nil || t.resetFunc == nil {
		return false
	}
	return t.resetFunc(d)
}

// Ticker mirrors time.Ticker for both real and fake clocks.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop shuts the ticker down.
func (t *Ticker) Stop() {
	if t == nil || t.stopFunc == nil {
		return
	}
	t.stopFunc()
}
