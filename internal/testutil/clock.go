package testutil

import (
	"sync"

	"github.com/roach88/growth/internal/date"
)

// FixedClock is a settable calendar clock for tests.
//
// It implements engine.Clock. Time only moves when Set or Advance is called,
// so a scenario can cross midnight exactly where it wants to.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	today date.Date
}

// NewFixedClock creates a clock fixed at today.
func NewFixedClock(today date.Date) *FixedClock {
	return &FixedClock{today: today}
}

// Today returns the current fixed date.
func (c *FixedClock) Today() date.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.today
}

// Set moves the clock to d. Moving backwards is allowed.
func (c *FixedClock) Set(d date.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = d
}

// Advance moves the clock forward by days and returns the new date.
func (c *FixedClock) Advance(days int) date.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = c.today.Add(days)
	return c.today
}
