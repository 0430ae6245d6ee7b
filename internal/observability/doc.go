// Package observability provides logging, metrics, and tracing for the
// gateway.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.WithContext(ctx).Warn("request rejected",
//	    observability.String("kind", "RATE_LIMITED"),
//	)
//
// WithContext attaches the request correlation id stored by the request id
// middleware, so every rejection can be traced back to one request.
//
// # Metrics
//
// Gateway-level HTTP metrics live on a private Prometheus registry exposed
// through Metrics.Handler. Component packages (ratelimit, cache, auth)
// register their own collectors with promauto.
//
// # Tracing
//
// NewTracer installs an OpenTelemetry tracer provider with an optional OTLP
// gRPC exporter. When tracing is disabled the global no-op provider is used
// and spans cost nothing.
package observability
