package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultSweepInterval is used when the configuration sets none.
const DefaultSweepInterval = time.Minute

// ErrRateLimited matches every rate limit rejection.
var ErrRateLimited error = apperr.New(apperr.KindRateLimited, nil)

// Limiter evaluates every matching tier for a request.
type Limiter struct {
	tiers         []Tier
	slowDown      *SlowDown
	clock         func() time.Time
	logger        observability.Logger
	metrics       *Metrics
	sweepInterval time.Duration

	stopCh   chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// Option is a functional option for the Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithTiers appends tiers built outside the configuration.
func WithTiers(tiers ...Tier) Option {
	return func(l *Limiter) {
		l.tiers = append(l.tiers, tiers...)
	}
}

// New builds a limiter from configuration. A disabled configuration yields
// a limiter with no tiers, which allows everything.
func New(cfg *config.RateLimitConfig, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		clock:         time.Now,
		logger:        observability.NopLogger(),
		metrics:       GetMetrics(),
		sweepInterval: DefaultSweepInterval,
		stopCh:        make(chan struct{}),
	}

	if cfg != nil && cfg.Enabled {
		if cfg.SweepInterval > 0 {
			l.sweepInterval = cfg.SweepInterval.Duration()
		}
		for i := range cfg.Tiers {
			tier, err := buildTier(&cfg.Tiers[i])
			if err != nil {
				return nil, err
			}
			l.tiers = append(l.tiers, tier)
		}
		if sd := cfg.SlowDown; sd != nil {
			scope, err := ParseScope(sd.Scope)
			if err != nil {
				return nil, err
			}
			l.slowDown = NewSlowDown(scope, sd.Window.Duration(), sd.DelayAfter,
				sd.DelayStep.Duration(), sd.MaxDelay.Duration())
		}
	}

	for _, opt := range opts {
		opt(l)
	}

	for _, t := range l.tiers {
		if fw, ok := t.(*FixedWindow); ok {
			fw.onRelease = func(tier string) {
				l.metrics.released.WithLabelValues(tier).Inc()
			}
		}
	}

	return l, nil
}

func buildTier(tc *config.TierConfig) (Tier, error) {
	scope, err := ParseScope(tc.Scope)
	if err != nil {
		return nil, err
	}
	key := KeySource(tc.Key)
	if key == "" {
		key = KeyIP
	}
	if key != KeyIP && key != KeyPrincipal {
		return nil, fmt.Errorf("tier %s: unknown key source %q", tc.Name, tc.Key)
	}
	if tc.MaxRequests < 1 || tc.Window <= 0 {
		return nil, fmt.Errorf("tier %s: window and maxRequests must be positive", tc.Name)
	}

	switch tc.Algorithm {
	case config.AlgorithmTokenBucket:
		return NewTokenBucket(tc.Name, scope, key, tc.MaxRequests, tc.Window.Duration(), tc.Burst), nil
	case config.AlgorithmFixedWindow, "":
		return NewFixedWindow(tc.Name, scope, key, tc.MaxRequests, tc.Window.Duration(), tc.SkipSuccessful), nil
	}
	return nil, fmt.Errorf("tier %s: unknown algorithm %q", tc.Name, tc.Algorithm)
}

// Tiers returns the configured rejecting tiers.
func (l *Limiter) Tiers() []Tier {
	return l.tiers
}

// Check counts req against every matching tier in order and stops at the
// first rejection. Tiers after a rejecting tier do not count the request.
func (l *Limiter) Check(req Request) *Verdict {
	v := &Verdict{Allowed: true}
	if req.Exempt {
		return v
	}

	now := l.clock()
	for _, t := range l.tiers {
		if !t.Scope().Matches(req) {
			continue
		}
		d := t.Take(req.Key(t.KeySource()), now)
		v.decisions = append(v.decisions, d)
		if !d.Allowed {
			l.metrics.decisions.WithLabelValues(d.Tier, "rejected").Inc()
			v.Allowed = false
			v.rejected = &v.decisions[len(v.decisions)-1]
			return v
		}
		l.metrics.decisions.WithLabelValues(d.Tier, "allowed").Inc()
	}

	if l.slowDown != nil && l.slowDown.scope.Matches(req) {
		v.Delay = l.slowDown.Delay(req.Key(KeyIP), now)
		if v.Delay > 0 {
			l.metrics.delayed.Inc()
			l.metrics.delay.Observe(v.Delay.Seconds())
		}
	}

	return v
}

// Sweep drops stale state from every tier.
func (l *Limiter) Sweep() {
	now := l.clock()
	for _, t := range l.tiers {
		l.metrics.trackedKeys.WithLabelValues(t.Name()).Set(float64(t.Sweep(now)))
	}
	if l.slowDown != nil {
		l.metrics.trackedKeys.WithLabelValues("slow_down").Set(float64(l.slowDown.Sweep(now)))
	}
}

// Start launches the background sweeper. It is a no-op when already
// started.
func (l *Limiter) Start() {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.started {
		return
	}
	l.started = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
	l.logger.Debug("rate limit sweeper started",
		observability.Duration("interval", l.sweepInterval),
		observability.Int("tiers", len(l.tiers)),
	)
}

// Stop stops the background sweeper and waits for it to exit.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
}

// Verdict is the combined answer of every matching tier.
type Verdict struct {
	Allowed bool

	// Delay is the progressive delay to apply before handling.
	Delay time.Duration

	decisions []Decision
	rejected  *Decision
	release   sync.Once
}

// Rejected returns the decision of the rejecting tier, or nil.
func (v *Verdict) Rejected() *Decision {
	return v.rejected
}

// Decisions returns every tier decision taken for the request.
func (v *Verdict) Decisions() []Decision {
	return v.decisions
}

// Err returns a RateLimited error carrying the retry hint, or nil.
func (v *Verdict) Err() error {
	if v.rejected == nil {
		return nil
	}
	return apperr.RateLimited(v.rejected.RetryAfter, fmt.Errorf("tier %s exceeded", v.rejected.Tier))
}

// Release hands back the increments of skip-successful tiers. Call it once
// the response is known to be successful. Repeated calls are no-ops.
func (v *Verdict) Release() {
	v.release.Do(func() {
		for i := range v.decisions {
			if r := v.decisions[i].release; r != nil {
				r()
			}
		}
	})
}

// Releasable reports whether an allowed request holds skip-successful
// increments that a successful response would hand back.
func (v *Verdict) Releasable() bool {
	if !v.Allowed {
		return false
	}
	for i := range v.decisions {
		if v.decisions[i].release != nil {
			return true
		}
	}
	return false
}

// Headline returns the decision reported in response headers: the rejecting
// tier, otherwise the tier with the fewest remaining requests.
func (v *Verdict) Headline() *Decision {
	return v.headline(false)
}

// headline picks the reported decision. With released set, skip-successful
// tiers count as already handed back.
func (v *Verdict) headline(released bool) *Decision {
	if v.rejected != nil {
		return v.rejected
	}
	var best *Decision
	for i := range v.decisions {
		d := v.decisions[i]
		if released && d.release != nil && d.Remaining < d.Limit {
			d.Remaining++
		}
		if best == nil || d.Remaining < best.Remaining ||
			(d.Remaining == best.Remaining && d.ResetAfter > best.ResetAfter) {
			best = &d
		}
	}
	return best
}

// SetHeaders writes the rate limit headers for the headline decision.
func (v *Verdict) SetHeaders(h http.Header) {
	writeHeaders(h, v.headline(false))
}

// SetFinalHeaders rewrites the headers once the response status is known.
// Below 400, skip-successful tiers report the increment they hand back.
func (v *Verdict) SetFinalHeaders(h http.Header, status int) {
	writeHeaders(h, v.headline(status > 0 && status < 400))
}

func writeHeaders(h http.Header, d *Decision) {
	if d == nil {
		return
	}
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(Seconds(d.ResetAfter), 10))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.FormatInt(Seconds(d.RetryAfter), 10))
	}
}

// Seconds rounds d up to whole seconds, with a minimum of one second for
// any positive duration.
func Seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
