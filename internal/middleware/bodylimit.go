package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/observability"
)

// DefaultMaxBodySize is the request body limit used when none is configured.
const DefaultMaxBodySize int64 = 1 << 20

// LimitBody wraps a single route handler with a request body limit. A
// declared Content-Length over the limit is rejected with 413 before next
// runs; otherwise the body is wrapped so reads past the limit fail. It
// runs inside the request pipeline, after rate limiting, so oversized
// requests are still counted.
func LimitBody(maxSize int64, logger observability.Logger, next gin.HandlerFunc) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			logger.WithContext(c.Request.Context()).Warn("request body too large",
				observability.Int64("content_length", c.Request.ContentLength),
				observability.Int64("max_size", maxSize),
				observability.String("path", c.Request.URL.Path),
			)

			GetMetrics().bodyLimitRejected.Inc()

			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request entity too large",
				"code":  "PAYLOAD_TOO_LARGE",
			})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		next(c)
	}
}
