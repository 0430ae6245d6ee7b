package ratelimit

import "time"

// SlowDown is the progressive delay tier. It never rejects. Once a key has
// made more than delayAfter requests in its window, each further request is
// delayed by delayStep more than the previous one, capped at maxDelay.
type SlowDown struct {
	scope      Scope
	delayAfter int
	delayStep  time.Duration
	maxDelay   time.Duration
	counter    *windowCounter
}

// NewSlowDown creates a progressive delay tier. It always keys by client IP.
func NewSlowDown(scope Scope, window time.Duration, delayAfter int, delayStep, maxDelay time.Duration) *SlowDown {
	return &SlowDown{
		scope:      scope,
		delayAfter: delayAfter,
		delayStep:  delayStep,
		maxDelay:   maxDelay,
		counter:    newWindowCounter(window),
	}
}

// Delay counts one request for key and returns the delay to apply.
func (s *SlowDown) Delay(key string, now time.Time) time.Duration {
	count, _ := s.counter.increment(key, now)
	over := count - s.delayAfter
	if over <= 0 {
		return 0
	}
	d := time.Duration(over) * s.delayStep
	if d > s.maxDelay || d < 0 {
		d = s.maxDelay
	}
	return d
}

// Sweep drops expired windows.
func (s *SlowDown) Sweep(now time.Time) int {
	return s.counter.sweep(now)
}
