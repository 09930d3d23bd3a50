package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Due callbacks run
// synchronously inside Advance, so tests must not call Advance or Sleep from
// within a scheduled callback.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	fn       func()
	interval time.Duration
	stopped  bool
}

// NewFake returns a FakeClock pinned to the given instant.
func NewFake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.addWaiterLocked(&fakeWaiter{deadline: c.current.Add(d), ch: ch})
	return ch
}

func (c *FakeClock) AfterFunc(d time.Duration, fn func()) *Timer {
	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		fn()
		return &Timer{
			stopFunc:  func() bool { return false },
			resetFunc: func(time.Duration) bool { return false },
		}
	}
	w := &fakeWaiter{deadline: c.current.Add(d), fn: fn}
	c.addWaiterLocked(w)
	c.mu.Unlock()
	return &Timer{
		stopFunc:  func() bool { return c.stopWaiter(w) },
		resetFunc: func(d time.Duration) bool { return c.resetWaiter(w, d) },
	}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.current.Add(d), ch: ch, interval: d}
	c.addWaiterLocked(w)
	c.mu.Unlock()
	return &Ticker{C: ch, stopFunc: func() { c.stopWaiter(w) }}
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward, firing waiters chronologically. The clock
// reads as each waiter's deadline while its callback runs, so callbacks may
// schedule follow-up timers and those fire too when they land inside the
// same window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	for {
		w, at := c.nextDueLocked(target)
		if w == nil {
			c.current = target
			break
		}
		if at.After(c.current) {
			c.current = at
		}
		c.mu.Unlock()
		if w.fn != nil {
			w.fn()
		} else {
			select {
			case w.ch <- at:
			default:
			}
		}
		c.mu.Lock()
	}
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n timers have been scheduled since the
// clock was created. Useful when the code under test arms timers from another
// goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// PendingTimers reports how many waiters are armed and unfired.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := 0
	for _, w := range c.waiters {
		if !w.stopped {
			active++
		}
	}
	return active
}

func (c *FakeClock) addWaiterLocked(w *fakeWaiter) {
	c.waiters = append(c.waiters, w)
	c.cond.Broadcast()
}

func (c *FakeClock) nextDueLocked(target time.Time) (*fakeWaiter, time.Time) {
	var best *fakeWaiter
	for _, w := range c.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) {
			best = w
		}
	}
	if best == nil {
		return nil, time.Time{}
	}
	at := best.deadline
	if best.interval > 0 {
		best.deadline = at.Add(best.interval)
	} else {
		best.stopped = true
	}
	return best, at
}

func (c *FakeClock) stopWaiter(w *fakeWaiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := !w.stopped
	w.stopped = true
	return was
}

func (c *FakeClock) resetWaiter(w *fakeWaiter, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := !w.stopped
	w.stopped = false
	w.deadline = c.current.Add(d)
	return was
}
