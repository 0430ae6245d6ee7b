package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Logger is the audit logger interface.
type Logger interface {
	// LogEvent records an event. It never fails the caller; write errors
	// go to the operational log.
	LogEvent(ctx context.Context, event *Event)

	// Close flushes and closes the output.
	Close() error
}

type logger struct {
	format  string
	writer  io.Writer
	closer  io.Closer
	mu      sync.Mutex
	logger  observability.Logger
	metrics *Metrics
}

// Option is a functional option for the audit logger.
type Option func(*logger)

// WithLogger sets the operational logger used to report write failures.
func WithLogger(l observability.Logger) Option {
	return func(a *logger) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithWriter sends events to w instead of the configured output.
func WithWriter(w io.Writer) Option {
	return func(a *logger) {
		a.writer = w
	}
}

// NewLogger creates an audit logger. A disabled configuration yields a
// no-op logger.
func NewLogger(cfg *config.AuditConfig, opts ...Option) (Logger, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNoopLogger(), nil
	}

	l := &logger{
		format:  cfg.Format,
		logger:  observability.NopLogger(),
		metrics: GetMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.writer == nil {
		writer, closer, err := openOutput(cfg.Output)
		if err != nil {
			return nil, err
		}
		l.writer = writer
		l.closer = closer
	}
	return l, nil
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return file, file, nil
}

// LogEvent implements Logger.
func (l *logger) LogEvent(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = observability.RequestIDFromContext(ctx)
	}
	if event.TraceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event.TraceID = sc.TraceID().String()
		}
	}

	l.metrics.RecordEvent(event.Type, event.Action, event.Outcome)
	l.write(event)
}

func (l *logger) write(event *Event) {
	var out []byte
	if l.format == config.AuditFormatText {
		out = []byte(formatText(event))
	} else {
		var err error
		out, err = json.Marshal(event)
		if err != nil {
			l.logger.Error("failed to marshal audit event", observability.Error(err))
			return
		}
		out = append(out, '\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(out); err != nil {
		l.logger.Error("failed to write audit event", observability.Error(err))
	}
}

func formatText(event *Event) string {
	var sb strings.Builder

	sb.WriteString(event.Timestamp.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(string(event.Type))
	sb.WriteString(" ")
	sb.WriteString(string(event.Action))
	sb.WriteString(" ")
	sb.WriteString(string(event.Outcome))

	if s := event.Subject; s != nil {
		if s.ID != "" {
			sb.WriteString(" subject=")
			sb.WriteString(s.ID)
		}
		if s.IPAddress != "" {
			sb.WriteString(" ip=")
			sb.WriteString(s.IPAddress)
		}
	}
	if r := event.Resource; r != nil {
		sb.WriteString(" resource=")
		sb.WriteString(r.Method)
		sb.WriteString(" ")
		sb.WriteString(r.Path)
	}
	if event.Reason != "" {
		sb.WriteString(" reason=")
		sb.WriteString(event.Reason)
	}
	if event.RequestID != "" {
		sb.WriteString(" request_id=")
		sb.WriteString(event.RequestID)
	}

	sb.WriteString("\n")
	return sb.String()
}

// Close implements Logger.
func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

type noopLogger struct{}

// NewNoopLogger returns a logger that discards events.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) LogEvent(context.Context, *Event) {}

func (noopLogger) Close() error { return nil }
