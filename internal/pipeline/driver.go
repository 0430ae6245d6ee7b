package pipeline

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/httperr"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

const tracerName = "avagate/pipeline"

// Stage is one step of the request pipeline.
type Stage interface {
	Name() string
	Process(ex *Exchange) Outcome
}

// Finisher runs once the response status is known.
type Finisher interface {
	Finish(ex *Exchange)
}

// responder writes a payload returned through Respond.
type responder interface {
	writePayload(ex *Exchange, p cache.Payload)
}

// Driver runs the stages in a fixed order around route handlers.
type Driver struct {
	stages  []Stage
	hooks   []Finisher
	logger  observability.Logger
	metrics *observability.Metrics
	devMode bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the logger used for rejections.
func WithLogger(logger observability.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMetrics records rejections per stage and kind.
func WithMetrics(m *observability.Metrics) DriverOption {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithDevMode exposes internal error causes in responses.
func WithDevMode(enabled bool) DriverOption {
	return func(d *Driver) {
		d.devMode = enabled
	}
}

// WithHooks adds finishers that run after the handler, after every stage
// finisher.
func WithHooks(hooks ...Finisher) DriverOption {
	return func(d *Driver) {
		d.hooks = append(d.hooks, hooks...)
	}
}

// NewDriver creates a driver running stages in the given order.
func NewDriver(stages []Stage, opts ...DriverOption) *Driver {
	d := &Driver{
		stages: stages,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle wraps handler with the pipeline for a route governed by policy.
func (d *Driver) Handle(policy Policy, handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "pipeline "+policy.Name)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		ex := &Exchange{Context: c, Policy: &policy}

		reached := 0
		outcome := Continue()
		var last Stage
		for _, s := range d.stages {
			reached++
			last = s
			outcome = s.Process(ex)
			if !outcome.IsContinue() {
				break
			}
		}

		switch outcome.kind {
		case outcomeReject:
			d.reject(ex, last.Name(), outcome.err)
			span.SetStatus(codes.Error, string(outcome.err.Kind))
			span.SetAttributes(attribute.String("pipeline.rejected_by", last.Name()))
		case outcomeRespond:
			if r, ok := last.(responder); ok {
				r.writePayload(ex, outcome.payload)
			} else {
				ex.Status = outcome.payload.Status
				c.Data(outcome.payload.Status, outcome.payload.ContentType, outcome.payload.Body)
			}
		default:
			d.run(ex, handler)
		}
		span.SetAttributes(attribute.Int("http.status_code", ex.Status))

		for i := reached - 1; i >= 0; i-- {
			if f, ok := d.stages[i].(Finisher); ok {
				f.Finish(ex)
			}
		}
		for _, h := range d.hooks {
			h.Finish(ex)
		}
	}
}

func (d *Driver) run(ex *Exchange, handler gin.HandlerFunc) {
	c := ex.Context
	if !ex.buffered {
		handler(c)
		ex.HandlerRan = true
		ex.Status = c.Writer.Status()
		return
	}

	original := c.Writer
	ex.capture = newCaptureWriter(original)
	c.Writer = ex.capture
	defer func() {
		c.Writer = original
	}()

	handler(c)
	ex.HandlerRan = true
	ex.Status = ex.capture.Status()
}

func (d *Driver) reject(ex *Exchange, stage string, err *apperr.Error) {
	c := ex.Context
	ex.Status = err.Status()
	ex.Rejection = err
	ex.RejectedBy = stage

	fields := []observability.Field{
		observability.String("stage", stage),
		observability.String("kind", string(err.Kind)),
		observability.String("route", ex.Policy.Name),
		observability.String("method", c.Request.Method),
		observability.String("path", c.Request.URL.Path),
		observability.String("client_ip", c.ClientIP()),
	}
	if ex.Principal != nil {
		fields = append(fields, observability.String("principal_id", ex.Principal.ID))
	}
	if err.Cause != nil {
		fields = append(fields, observability.Error(err.Cause))
	}

	log := d.logger.WithContext(c.Request.Context())
	if err.Status() >= 500 {
		log.Error("request rejected", fields...)
	} else {
		log.Info("request rejected", fields...)
	}

	if d.metrics != nil {
		d.metrics.RecordRejection(stage, string(err.Kind))
	}
	httperr.Write(c, err, d.devMode)
}
