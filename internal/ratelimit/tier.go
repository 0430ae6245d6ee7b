package ratelimit

import (
	"hash/fnv"
	"time"
)

// shardCount is the number of independently locked shards per tier.
const shardCount = 32

// Decision is one tier's answer for one request.
type Decision struct {
	Tier       string
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration

	release func()
}

// Tier is a rejecting rate limit rule.
type Tier interface {
	Name() string
	Scope() Scope
	KeySource() KeySource

	// Take counts one request for key at now.
	Take(key string, now time.Time) Decision

	// Sweep drops state that can no longer affect a decision and returns
	// the number of keys still tracked.
	Sweep(now time.Time) int
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
