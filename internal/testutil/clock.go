// Package testutil provides deterministic collaborators for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe fixed clock for tests. Time only moves when
// the test advances it, so timestamps in persisted records are stable
// across runs and safe to compare against golden files.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock pinned to t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fixed time. Pass as the engine's clock:
//
//	track.WithNow(clock.Now)
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t. Used for test reuse; after Set the next
// Now returns exactly t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
