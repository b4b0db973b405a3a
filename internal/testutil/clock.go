package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe fake clock for tests. Every call to
// Now advances it by a fixed step, so elapsed times in scan results are
// reproducible.
type DeterministicClock struct {
	mu    sync.Mutex
	step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock that advances by step per read.
// The first call to Now returns Epoch plus one step.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{step: step}
}

// Now advances the clock and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return Epoch.Add(time.Duration(c.ticks) * c.step)
}

// Ticks returns how many times Now has been called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
