package catalog

import (
	"sync"
	"time"
)

type gate int

const (
	gateOpen gate = iota
	gateBusy
	gateCooldown
)

// Cache holds the current snapshot and the refresh bookkeeping. One mutex
// guards everything and is never held across a fetch.
type Cache struct {
	mu                sync.Mutex
	snapshot          *Document
	capturedAt        time.Time
	lastAttemptAt     time.Time
	lastAttemptFailed bool
	inProgress        bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Snapshot returns the current document and when it was captured.
func (c *Cache) Snapshot() (*Document, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.capturedAt, c.snapshot != nil
}

// Seed installs an initial snapshot, e.g. from the on-disk mirror.
func (c *Cache) Seed(doc *Document, at time.Time) {
	if doc.Len() == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = doc
	c.capturedAt = at
}

// InProgress reports whether a fetch is running.
func (c *Cache) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// begin claims the single fetch slot. A cooldown > 0 refuses the claim while
// the last failed attempt is younger than the cooldown.
func (c *Cache) begin(now time.Time, cooldown time.Duration) gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress {
		return gateBusy
	}
	if cooldown > 0 && c.lastAttemptFailed && now.Sub(c.lastAttemptAt) < cooldown {
		return gateCooldown
	}
	c.inProgress = true
	return gateOpen
}

// finish releases the fetch slot. doc replaces the snapshot only when it has
// at least one item; the return value reports whether it did.
func (c *Cache) finish(doc *Document, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = false
	c.lastAttemptAt = now
	if doc.Len() == 0 {
		c.lastAttemptFailed = true
		return false
	}
	c.lastAttemptFailed = false
	c.snapshot = doc
	c.capturedAt = now
	return true
}
