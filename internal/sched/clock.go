package sched

import (
	"sync"
	"time"
)

// Clock supplies the current time to the scheduler.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by time.Now.
func RealClock() Clock { return realClock{} }

// ManualClock is a Clock that only moves when told to. Used by tests and
// simulations to drive timers deterministically.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Add moves the clock forward by d.
func (c *ManualClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Advance moves c forward by d. Every timer deadline crossed on the way is
// visited in order: the clock is set to the deadline and the scheduler is run
// until idle before moving on, so timers armed by a handler are honored within
// the same call.
func Advance(s *Scheduler, c *ManualClock, d time.Duration) {
	target := c.Now().Add(d)
	s.RunUntilIdle()
	for {
		next, ok := s.NextDeadline()
		if !ok || next.After(target) {
			break
		}
		if next.After(c.Now()) {
			c.Set(next)
		}
		s.RunUntilIdle()
	}
	c.Set(target)
	s.RunUntilIdle()
}
