// Package cache memoizes successful GET responses.
//
// Entries are keyed by BuildKey (method, path, sorted query) and live for a
// TTL. Expired entries are removed lazily when read and periodically by a
// sweeper. When the cache is full the oldest-inserted entry is evicted;
// reads never change eviction order. Mutations invalidate entries by glob
// pattern. Invalidation may clear more than strictly necessary but never
// less.
package cache

import (
	"context"
	"time"
)

// Payload is a stored response.
type Payload struct {
	Status      int
	ContentType string
	Body        []byte
	ETag        string
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Expirations   int64
	Invalidations int64
	StaleFills    int64
	Size          int
}

// Cache is a response cache.
type Cache interface {
	// Get returns the payload stored under key. An expired entry is removed
	// and reported as a miss.
	Get(ctx context.Context, key string) (Payload, bool)

	// Set stores payload under key for ttl, or the default TTL when ttl is
	// zero. Setting an existing key replaces it as the newest entry.
	Set(ctx context.Context, key string, payload Payload, ttl time.Duration)

	// Generation returns the current invalidation generation. Record it
	// before reading the data a response is built from.
	Generation() uint64

	// SetIfUnchanged stores payload like Set unless an invalidation
	// matching key ran after generation gen. It reports whether the
	// payload was stored.
	SetIfUnchanged(ctx context.Context, key string, payload Payload, ttl time.Duration, gen uint64) bool

	// Invalidate removes every entry whose key matches pattern and returns
	// how many were removed.
	Invalidate(ctx context.Context, pattern string) int

	// Len returns the number of stored entries, expired or not.
	Len() int

	// Stats returns cumulative counters.
	Stats() Stats

	// Close stops background work and drops all entries.
	Close() error
}
