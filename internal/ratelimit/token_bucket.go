package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type bucketShard struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
}

// TokenBucket is a tier that refills MaxRequests tokens per window and
// allows bursts up to its bucket size.
type TokenBucket struct {
	name      string
	scope     Scope
	keySource KeySource
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	shards    [shardCount]bucketShard
}

// NewTokenBucket creates a token-bucket tier. A burst below one defaults to
// maxRequests.
func NewTokenBucket(name string, scope Scope, key KeySource, maxRequests int, window time.Duration, burst int) *TokenBucket {
	if burst < 1 {
		burst = maxRequests
	}
	t := &TokenBucket{
		name:      name,
		scope:     scope,
		keySource: key,
		limit:     rate.Every(window / time.Duration(maxRequests)),
		burst:     burst,
		idleTTL:   window,
	}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*bucketEntry)
	}
	return t
}

// Name implements Tier.
func (t *TokenBucket) Name() string { return t.name }

// Scope implements Tier.
func (t *TokenBucket) Scope() Scope { return t.scope }

// KeySource implements Tier.
func (t *TokenBucket) KeySource() KeySource { return t.keySource }

// Take implements Tier.
func (t *TokenBucket) Take(key string, now time.Time) Decision {
	s := &t.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &bucketEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)

	d := Decision{
		Tier:       t.name,
		Allowed:    allowed,
		Limit:      t.burst,
		Remaining:  int(math.Max(0, math.Floor(tokens))),
		ResetAfter: t.durationFor(float64(t.burst) - tokens),
	}
	if !allowed {
		d.RetryAfter = t.durationFor(1 - tokens)
	}
	return d
}

// durationFor returns how long refilling n tokens takes.
func (t *TokenBucket) durationFor(n float64) time.Duration {
	if n <= 0 || t.limit <= 0 {
		return 0
	}
	return time.Duration(n / float64(t.limit) * float64(time.Second))
}

// Sweep implements Tier. Buckets idle for a full window are full again and
// can be dropped without changing any decision.
func (t *TokenBucket) Sweep(now time.Time) int {
	remaining := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) >= t.idleTTL {
				delete(s.entries, k)
			}
		}
		remaining += len(s.entries)
		s.mu.Unlock()
	}
	return remaining
}
