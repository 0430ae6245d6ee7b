package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/httperr"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Recovery returns a middleware that recovers from panics and answers with
// the internal error body.
func Recovery(logger observability.Logger, devMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithContext(c.Request.Context()).Error("panic recovered",
					observability.String("path", c.Request.URL.Path),
					observability.String("method", c.Request.Method),
					observability.Any("error", rec),
					observability.String("stack", string(debug.Stack())),
				)

				GetMetrics().panicsRecovered.Inc()

				if c.Writer.Written() {
					c.Abort()
					return
				}
				httperr.Write(c, apperr.Internal(fmt.Errorf("panic: %v", rec)), devMode)
			}
		}()

		c.Next()
	}
}
