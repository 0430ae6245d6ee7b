package pipeline

import (
	"bytes"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Cache response headers.
const (
	HeaderCache = "X-Cache"
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
)

// CacheStage serves cacheable GET routes from the response cache, stores
// successful responses, and answers If-None-Match with 304 on every GET.
type CacheStage struct {
	cache  cache.Cache
	etag   bool
	logger observability.Logger
}

// CacheOption configures a CacheStage.
type CacheOption func(*CacheStage)

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) CacheOption {
	return func(s *CacheStage) {
		s.logger = logger
	}
}

// WithETag enables entity tags on successful GET responses.
func WithETag(enabled bool) CacheOption {
	return func(s *CacheStage) {
		s.etag = enabled
	}
}

// NewCacheStage creates the cache stage. A nil cache disables lookups and
// storage while entity tags keep working.
func NewCacheStage(c cache.Cache, opts ...CacheOption) *CacheStage {
	s := &CacheStage{
		cache:  c,
		etag:   true,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Stage.
func (s *CacheStage) Name() string { return "cache" }

// Process implements Stage. A miss is not an error.
func (s *CacheStage) Process(ex *Exchange) Outcome {
	c := ex.Context
	if c.Request.Method != http.MethodGet {
		return Continue()
	}

	cacheable := s.cache != nil && ex.Policy.Cacheable
	if !cacheable && !s.etag {
		return Continue()
	}
	ex.buffered = true

	if !cacheable {
		return Continue()
	}

	key := cache.BuildKey(c.Request.Method, c.Request.URL.Path, c.Request.URL.Query())
	if payload, ok := s.cache.Get(c.Request.Context(), key); ok {
		c.Header(HeaderCache, CacheHit)
		return Respond(payload)
	}
	c.Header(HeaderCache, CacheMiss)
	ex.CacheKey = key
	ex.cacheGen = s.cache.Generation()
	return Continue()
}

// Finish stores a successful buffered response unless a matching
// invalidation ran while the handler was reading, tags it, and releases it
// to the client.
func (s *CacheStage) Finish(ex *Exchange) {
	cw := ex.capture
	if cw == nil {
		return
	}

	status := cw.Status()
	body := cw.body.Bytes()
	header := cw.Header()
	success := status >= http.StatusOK && status < http.StatusMultipleChoices

	var tag string
	if success && s.etag {
		tag = cache.ETag(body)
		header.Set("ETag", tag)
	}

	if success && ex.CacheKey != "" {
		s.cache.SetIfUnchanged(ex.Request().Context(), ex.CacheKey, cache.Payload{
			Status:      status,
			ContentType: header.Get("Content-Type"),
			Body:        bytes.Clone(body),
			ETag:        tag,
		}, ex.Policy.CacheTTL, ex.cacheGen)
	}

	if tag != "" && cache.IfNoneMatch(ex.Request().Header.Get("If-None-Match"), tag) {
		s.notModified(ex, tag)
		return
	}
	cw.commit()
}

// writePayload answers a cache hit.
func (s *CacheStage) writePayload(ex *Exchange, p cache.Payload) {
	c := ex.Context
	if p.ETag != "" {
		c.Header("ETag", p.ETag)
		if cache.IfNoneMatch(c.GetHeader("If-None-Match"), p.ETag) {
			s.notModified(ex, p.ETag)
			return
		}
	}
	ex.Status = p.Status
	c.Data(p.Status, p.ContentType, p.Body)
}

func (s *CacheStage) notModified(ex *Exchange, tag string) {
	w := ex.Context.Writer
	if ex.capture != nil {
		w = ex.capture.ResponseWriter
	}
	h := w.Header()
	h.Del("Content-Type")
	h.Del("Content-Length")
	h.Set("ETag", tag)
	w.WriteHeader(http.StatusNotModified)
	w.WriteHeaderNow()
	ex.Status = http.StatusNotModified
	cache.GetMetrics().RecordNotModified()
}

// InvalidationHook clears cache entries after successful mutations.
type InvalidationHook struct {
	cache  cache.Cache
	logger observability.Logger
}

// NewInvalidationHook creates the invalidation hook.
func NewInvalidationHook(c cache.Cache, logger observability.Logger) *InvalidationHook {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &InvalidationHook{cache: c, logger: logger}
}

// Finish implements Finisher.
func (h *InvalidationHook) Finish(ex *Exchange) {
	if h.cache == nil || !ex.HandlerRan || len(ex.Policy.Invalidates) == 0 {
		return
	}
	if ex.Status < http.StatusOK || ex.Status >= http.StatusMultipleChoices {
		return
	}
	switch ex.Request().Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return
	}

	start := time.Now()
	removed := 0
	for _, pattern := range ex.Policy.Invalidates {
		removed += h.cache.Invalidate(ex.Request().Context(), pattern)
	}
	h.logger.WithContext(ex.Request().Context()).Debug("cache invalidated",
		observability.String("route", ex.Policy.Name),
		observability.Strings("patterns", ex.Policy.Invalidates),
		observability.Int("removed", removed),
		observability.Duration("duration", time.Since(start)),
	)
}
