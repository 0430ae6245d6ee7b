package pipeline

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
)

// PrincipalResolver verifies the Authorization header for rate limit
// keying before authentication has run. It must not touch the principal
// store.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, authorizationHeader string) auth.Verification
}

// TokenResolver resolves the principal from the signature-verified bearer
// token subject.
type TokenResolver struct {
	Verifier auth.TokenVerifier
}

// ResolvePrincipal implements PrincipalResolver.
func (r TokenResolver) ResolvePrincipal(ctx context.Context, header string) auth.Verification {
	return auth.VerifyHeader(ctx, r.Verifier, header)
}

// RateLimitStage counts the request against the limiter tiers.
type RateLimitStage struct {
	limiter  *ratelimit.Limiter
	resolver PrincipalResolver
	logger   observability.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// RateLimitOption configures a RateLimitStage.
type RateLimitOption func(*RateLimitStage)

// WithPrincipalResolver enables principal-keyed tiers. The authentication
// stage reuses the resolver's verification, so it must verify with the
// same verifier as the gate.
func WithPrincipalResolver(r PrincipalResolver) RateLimitOption {
	return func(s *RateLimitStage) {
		s.resolver = r
	}
}

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(logger observability.Logger) RateLimitOption {
	return func(s *RateLimitStage) {
		s.logger = logger
	}
}

// WithSleep replaces the progressive delay wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RateLimitOption {
	return func(s *RateLimitStage) {
		s.sleep = sleep
	}
}

// NewRateLimitStage creates the rate limit stage.
func NewRateLimitStage(limiter *ratelimit.Limiter, opts ...RateLimitOption) *RateLimitStage {
	s := &RateLimitStage{
		limiter: limiter,
		logger:  observability.NopLogger(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Stage.
func (s *RateLimitStage) Name() string { return "ratelimit" }

// Process implements Stage.
func (s *RateLimitStage) Process(ex *Exchange) Outcome {
	c := ex.Context
	req := ratelimit.Request{
		Method:       c.Request.Method,
		ClientIP:     c.ClientIP(),
		AuthEndpoint: ex.Policy.AuthEndpoint,
		Exempt:       ex.Policy.Exempt,
	}
	if s.resolver != nil && !req.Exempt {
		if header := c.GetHeader("Authorization"); header != "" {
			v := s.resolver.ResolvePrincipal(c.Request.Context(), header)
			ex.verification = &v
			if v.Err == nil && v.Claims != nil {
				req.PrincipalID = v.Claims.PrincipalID
			}
		}
	}

	v := s.limiter.Check(req)
	ex.Verdict = v
	v.SetHeaders(c.Writer.Header())
	if v.Releasable() {
		ex.rateLimitWriter = &rateLimitHeaderWriter{ResponseWriter: c.Writer, verdict: v}
		c.Writer = ex.rateLimitWriter
	}

	if !v.Allowed {
		return Reject(v.Err())
	}

	if v.Delay > 0 {
		s.logger.WithContext(c.Request.Context()).Debug("delaying request",
			observability.Duration("delay", v.Delay),
			observability.String("client_ip", req.ClientIP),
		)
		if err := s.sleep(c.Request.Context(), v.Delay); err != nil {
			return Reject(apperr.Internal(err))
		}
	}
	return Continue()
}

// Finish hands back skip-successful increments for responses below 400.
func (s *RateLimitStage) Finish(ex *Exchange) {
	if ex.rateLimitWriter != nil {
		ex.rateLimitWriter.finalize()
	}
	if ex.Verdict != nil && ex.Status > 0 && ex.Status < 400 {
		ex.Verdict.Release()
	}
}

// rateLimitHeaderWriter rewrites the rate limit headers just before they
// are sent, when the response status is known.
type rateLimitHeaderWriter struct {
	gin.ResponseWriter
	verdict   *ratelimit.Verdict
	finalized bool
}

func (w *rateLimitHeaderWriter) finalize() {
	if w.finalized || w.ResponseWriter.Written() {
		return
	}
	w.finalized = true
	w.verdict.SetFinalHeaders(w.ResponseWriter.Header(), w.ResponseWriter.Status())
}

func (w *rateLimitHeaderWriter) WriteHeaderNow() {
	w.finalize()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *rateLimitHeaderWriter) Write(data []byte) (int, error) {
	w.finalize()
	return w.ResponseWriter.Write(data)
}

func (w *rateLimitHeaderWriter) WriteString(s string) (int, error) {
	w.finalize()
	return w.ResponseWriter.WriteString(s)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
