package ratelimit

import (
	"sync"
	"time"
)

// windowEntry is one client's count in its current window.
type windowEntry struct {
	count       int
	windowStart time.Time
}

type windowShard struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

// windowCounter is a sharded map of per-key fixed windows. Each key's window
// starts at its first request and restarts once a full window has elapsed.
type windowCounter struct {
	window time.Duration
	shards [shardCount]windowShard
}

func newWindowCounter(window time.Duration) *windowCounter {
	c := &windowCounter{window: window}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*windowEntry)
	}
	return c
}

// increment resets a stale window, adds one, and returns the new count with
// the window start it was counted in.
func (c *windowCounter) increment(key string, now time.Time) (int, time.Time) {
	s := &c.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &windowEntry{windowStart: now}
		s.entries[key] = e
	} else if now.Sub(e.windowStart) >= c.window {
		e.count = 0
		e.windowStart = now
	}
	e.count++
	return e.count, e.windowStart
}

// decrement undoes one increment, provided the window it was counted in is
// still current.
func (c *windowCounter) decrement(key string, windowStart time.Time) bool {
	s := &c.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.windowStart.Equal(windowStart) || e.count == 0 {
		return false
	}
	e.count--
	return true
}

func (c *windowCounter) sweep(now time.Time) int {
	remaining := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if now.Sub(e.windowStart) >= c.window {
				delete(s.entries, k)
			}
		}
		remaining += len(s.entries)
		s.mu.Unlock()
	}
	return remaining
}

// FixedWindow is a tier that rejects once a key's count in its window
// exceeds the threshold.
type FixedWindow struct {
	name           string
	scope          Scope
	keySource      KeySource
	limit          int
	skipSuccessful bool
	counter        *windowCounter
	onRelease      func(tier string)
}

// NewFixedWindow creates a fixed-window tier.
func NewFixedWindow(name string, scope Scope, key KeySource, limit int, window time.Duration, skipSuccessful bool) *FixedWindow {
	return &FixedWindow{
		name:           name,
		scope:          scope,
		keySource:      key,
		limit:          limit,
		skipSuccessful: skipSuccessful,
		counter:        newWindowCounter(window),
	}
}

// Name implements Tier.
func (t *FixedWindow) Name() string { return t.name }

// Scope implements Tier.
func (t *FixedWindow) Scope() Scope { return t.scope }

// KeySource implements Tier.
func (t *FixedWindow) KeySource() KeySource { return t.keySource }

// Take implements Tier. The count is incremented before it is compared, so
// rejected requests count too.
func (t *FixedWindow) Take(key string, now time.Time) Decision {
	count, start := t.counter.increment(key, now)

	resetAfter := start.Add(t.counter.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}
	remaining := t.limit - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Tier:       t.name,
		Allowed:    count <= t.limit,
		Limit:      t.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !d.Allowed {
		d.RetryAfter = resetAfter
	}
	if t.skipSuccessful {
		d.release = func() {
			if t.counter.decrement(key, start) && t.onRelease != nil {
				t.onRelease(t.name)
			}
		}
	}
	return d
}

// Sweep implements Tier.
func (t *FixedWindow) Sweep(now time.Time) int {
	return t.counter.sweep(now)
}
