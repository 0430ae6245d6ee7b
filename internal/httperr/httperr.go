// Package httperr renders gateway errors as JSON responses.
//
// Every error leaves the gateway in the same shape:
//
//	{"error": "too many requests", "code": "RATE_LIMITED", "retry_after": 42}
//
// The message is the stable public message of the error kind. The internal
// cause is added under "details" only in development mode.
package httperr

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/apperr"
)

// Body is the JSON error response.
type Body struct {
	Error      string            `json:"error"`
	Code       apperr.Kind       `json:"code"`
	RetryAfter int64             `json:"retry_after,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Details    string            `json:"details,omitempty"`
}

// NewBody builds the response body for err.
func NewBody(err error, devMode bool) (int, Body) {
	e := apperr.As(err)
	if e == nil {
		e = apperr.Internal(nil)
	}
	b := Body{
		Error:  e.Public(),
		Code:   e.Kind,
		Fields: e.Fields,
	}
	if e.Kind == apperr.KindRateLimited {
		b.RetryAfter = ceilSeconds(e)
	}
	if devMode && e.Cause != nil {
		b.Details = e.Cause.Error()
	}
	return e.Status(), b
}

// Write aborts the gin chain with the JSON rendering of err.
func Write(c *gin.Context, err error, devMode bool) {
	status, body := NewBody(err, devMode)
	if body.Code == apperr.KindRateLimited && c.Writer.Header().Get("Retry-After") == "" && body.RetryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(body.RetryAfter, 10))
	}
	c.AbortWithStatusJSON(status, body)
}

func ceilSeconds(e *apperr.Error) int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int64((e.RetryAfter + time.Second - 1) / time.Second)
}
