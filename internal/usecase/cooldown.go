package usecase

import (
	"sync"
	"time"
)

// CooldownTracker suppresses re-detection of an instrument for a fixed window
// after a decision was made about it.
type CooldownTracker struct {
	mu        sync.Mutex
	window    time.Duration
	triggered map[string]time.Time
}

func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{
		window:    window,
		triggered: make(map[string]time.Time),
	}
}

// Trigger starts (or restarts) the instrument's cooldown at the given time.
func (c *CooldownTracker) Trigger(instrument string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggered[instrument] = at
}

// Active reports whether the instrument is still cooling down at the given time.
func (c *CooldownTracker) Active(instrument string, at time.Time) bool {
	return c.Remaining(instrument, at) > 0
}

// Remaining returns how long the instrument stays suppressed, or 0.
func (c *CooldownTracker) Remaining(instrument string, at time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.triggered[instrument]
	if !ok {
		return 0
	}
	left := t.Add(c.window).Sub(at)
	if left < 0 {
		return 0
	}
	return left
}

// Prune drops expired entries and returns how many are still active.
func (c *CooldownTracker) Prune(at time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, t := range c.triggered {
		if !at.Before(t.Add(c.window)) {
			delete(c.triggered, k)
		}
	}
	return len(c.triggered)
}

// Snapshot returns the expiry time of every active cooldown.
func (c *CooldownTracker) Snapshot(at time.Time) map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]time.Time, len(c.triggered))
	for k, t := range c.triggered {
		if until := t.Add(c.window); at.Before(until) {
			out[k] = until
		}
	}
	return out
}
