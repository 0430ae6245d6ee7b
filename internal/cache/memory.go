package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Defaults for a zero configuration.
const (
	DefaultMaxEntries    = 1000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// invalidationLogSize bounds the recent invalidations kept for
// SetIfUnchanged. A fill older than the log is treated as stale.
const invalidationLogSize = 128

// tracerName is the OpenTelemetry tracer name for cache operations.
const tracerName = "avagate/cache"

// MemoryCache is an in-process Cache with insertion-order eviction. The
// list runs from oldest (front) to newest (back). All map and list work
// happens under one mutex and never blocks on I/O.
type MemoryCache struct {
	logger        observability.Logger
	metrics       *Metrics
	clock         func() time.Time
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
	stats Stats

	// gen counts invalidations; invalidations holds the most recent ones
	// in ascending generation order.
	gen           uint64
	invalidations []invalidation

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type entry struct {
	key       string
	payload   Payload
	storedAt  time.Time
	expiresAt time.Time
}

type invalidation struct {
	gen     uint64
	pattern string
}

// Option is a functional option for the MemoryCache.
type Option func(*MemoryCache)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *MemoryCache) {
		c.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *MemoryCache) {
		c.clock = clock
	}
}

// WithSweepInterval overrides the expiry sweep interval. Zero disables the
// background sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(c *MemoryCache) {
		c.sweepInterval = d
	}
}

// NewMemoryCache creates a cache and starts its expiry sweeper.
func NewMemoryCache(cfg *config.CacheConfig, opts ...Option) *MemoryCache {
	c := &MemoryCache{
		logger:        observability.NopLogger(),
		metrics:       GetMetrics(),
		clock:         time.Now,
		maxEntries:    DefaultMaxEntries,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		items:         make(map[string]*list.Element),
		order:         list.New(),
		stopCh:        make(chan struct{}),
	}
	if cfg != nil {
		if cfg.MaxEntries > 0 {
			c.maxEntries = cfg.MaxEntries
		}
		if cfg.DefaultTTL > 0 {
			c.defaultTTL = cfg.DefaultTTL.Duration()
		}
		if cfg.SweepInterval > 0 {
			c.sweepInterval = cfg.SweepInterval.Duration()
		}
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	c.logger.Info("response cache initialized",
		observability.Int("maxEntries", c.maxEntries),
		observability.Duration("defaultTTL", c.defaultTTL),
	)
	return c
}

// DefaultTTL returns the TTL used when Set is given zero.
func (c *MemoryCache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (Payload, bool) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	now := c.clock()

	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		c.metrics.misses.Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return Payload{}, false
	}

	e := elem.Value.(*entry)
	if !now.Before(e.expiresAt) {
		c.removeElement(elem)
		c.stats.Misses++
		c.stats.Expirations++
		size := c.order.Len()
		c.mu.Unlock()
		c.metrics.misses.Inc()
		c.metrics.expirations.Inc()
		c.metrics.size.Set(float64(size))
		span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("cache.expired", true))
		return Payload{}, false
	}

	c.stats.Hits++
	payload := e.payload
	c.mu.Unlock()

	c.metrics.hits.Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(payload.Body)),
	)
	return payload, true
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, payload Payload, ttl time.Duration) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(payload.Body)),
		),
	)
	defer span.End()

	c.mu.Lock()
	evicted, size := c.insertLocked(key, payload, ttl)
	c.mu.Unlock()
	c.afterInsert(evicted, size)
}

// Generation implements Cache.
func (c *MemoryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfUnchanged implements Cache.
func (c *MemoryCache) SetIfUnchanged(ctx context.Context, key string, payload Payload, ttl time.Duration, gen uint64) bool {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.SetIfUnchanged",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.generation", int64(gen)),
		),
	)
	defer span.End()

	c.mu.Lock()
	if c.invalidatedSinceLocked(key, gen) {
		c.stats.StaleFills++
		c.mu.Unlock()
		c.metrics.staleFills.Inc()
		span.SetAttributes(attribute.Bool("cache.stale", true))
		c.logger.WithContext(ctx).Debug("cache fill dropped after invalidation",
			observability.String("key", key),
		)
		return false
	}
	evicted, size := c.insertLocked(key, payload, ttl)
	c.mu.Unlock()
	c.afterInsert(evicted, size)
	return true
}

// invalidatedSinceLocked reports whether an invalidation matching key ran
// after gen. It must be called with the lock held.
func (c *MemoryCache) invalidatedSinceLocked(key string, gen uint64) bool {
	if c.gen == gen {
		return false
	}
	if gen > c.gen || len(c.invalidations) == 0 || c.invalidations[0].gen > gen+1 {
		return true
	}
	for _, inv := range c.invalidations {
		if inv.gen > gen && MatchPattern(inv.pattern, key) {
			return true
		}
	}
	return false
}

// insertLocked stores an entry as the newest, evicting the oldest entries
// while the cache is full. It must be called with the lock held.
func (c *MemoryCache) insertLocked(key string, payload Payload, ttl time.Duration) (evicted, size int) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.clock()
	e := &entry{
		key:       key,
		payload:   payload,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}

	if old, ok := c.items[key]; ok {
		c.removeElement(old)
	}
	for c.order.Len() >= c.maxEntries {
		c.removeElement(c.order.Front())
		evicted++
	}
	c.items[key] = c.order.PushBack(e)
	c.stats.Evictions += int64(evicted)
	return evicted, c.order.Len()
}

func (c *MemoryCache) afterInsert(evicted, size int) {
	if evicted > 0 {
		c.metrics.evictions.Add(float64(evicted))
		c.logger.Debug("cache evicted oldest entries", observability.Int("count", evicted))
	}
	c.metrics.size.Set(float64(size))
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(ctx context.Context, pattern string) int {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Invalidate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cache.pattern", pattern)),
	)
	defer span.End()

	c.mu.Lock()
	c.gen++
	if len(c.invalidations) == invalidationLogSize {
		copy(c.invalidations, c.invalidations[1:])
		c.invalidations = c.invalidations[:invalidationLogSize-1]
	}
	c.invalidations = append(c.invalidations, invalidation{gen: c.gen, pattern: pattern})
	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if MatchPattern(pattern, elem.Value.(*entry).key) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	c.stats.Invalidations += int64(removed)
	size := c.order.Len()
	c.mu.Unlock()

	c.metrics.invalidations.Add(float64(removed))
	c.metrics.size.Set(float64(size))
	span.SetAttributes(attribute.Int("cache.removed", removed))
	c.logger.WithContext(ctx).Debug("cache invalidated",
		observability.String("pattern", pattern),
		observability.Int("removed", removed),
	)
	return removed
}

// Len implements Cache.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats implements Cache.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.order.Len()
	return s
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()

	c.mu.Lock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()
	c.metrics.size.Set(0)
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.clock()

	c.mu.Lock()
	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if !now.Before(elem.Value.(*entry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	c.stats.Expirations += int64(removed)
	size := c.order.Len()
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.expirations.Add(float64(removed))
		c.logger.Debug("cache sweep completed", observability.Int("removed", removed))
	}
	c.metrics.size.Set(float64(size))
	return removed
}

// removeElement must be called with the lock held.
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

func (c *MemoryCache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}
