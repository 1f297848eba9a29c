// Package velocity counts distinct events per key over a sliding window.
package velocity

import (
	"context"
	"sync"
	"time"
)

// Counter records event id under key at time at and returns how many
// distinct events key has seen in the window ending at at, this one
// included. Recording the same event again changes nothing, so a retried
// evaluation sees the same count.
type Counter interface {
	Observe(ctx context.Context, key, eventID string, at time.Time, window time.Duration) (int64, error)
}

// MemoryCounter is a process-local Counter for single-node deployments.
type MemoryCounter struct {
	mu        sync.Mutex
	events    map[string]map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{events: make(map[string]map[string]time.Time), now: time.Now}
}

func (c *MemoryCounter) Observe(_ context.Context, key, eventID string, at time.Time, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(window)

	seen, ok := c.events[key]
	if !ok {
		seen = make(map[string]time.Time)
		c.events[key] = seen
	}
	if _, dup := seen[eventID]; !dup {
		seen[eventID] = at
	}

	from := at.Add(-window)
	var n int64
	for _, t := range seen {
		if t.After(from) && !t.After(at) {
			n++
		}
	}
	return n, nil
}

// sweep drops events older than two windows, at most once per window.
// Caller holds mu.
func (c *MemoryCounter) sweep(window time.Duration) {
	now := c.now()
	if now.Sub(c.lastSweep) < window {
		return
	}
	c.lastSweep = now
	cutoff := now.Add(-2 * window)
	for k, seen := range c.events {
		for id, t := range seen {
			if t.Before(cutoff) {
				delete(seen, id)
			}
		}
		if len(seen) == 0 {
			delete(c.events, k)
		}
	}
}
