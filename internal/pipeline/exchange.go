package pipeline

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
)

// Exchange is the state of one request as it moves through the stages.
type Exchange struct {
	Context *gin.Context
	Policy  *Policy

	Principal *auth.Principal
	Claims    *token.Claims
	Verdict   *ratelimit.Verdict

	// CacheKey is set on a cacheable miss; the response is stored under it.
	CacheKey string
	cacheGen uint64

	// Status is the final response status, known once the handler ran or a
	// stage short-circuited.
	Status int

	// HandlerRan reports whether the route handler was invoked.
	HandlerRan bool

	// Rejection is the error a stage rejected the request with, and
	// RejectedBy names that stage.
	Rejection  *apperr.Error
	RejectedBy string

	// verification is the rate limit stage's check of the Authorization
	// header, reused by the authentication stage.
	verification *auth.Verification

	capture         *captureWriter
	rateLimitWriter *rateLimitHeaderWriter
	buffered        bool
}

// Request returns the underlying HTTP request.
func (ex *Exchange) Request() *http.Request {
	return ex.Context.Request
}

// Outcome is the result of a stage.
type Outcome struct {
	kind    outcomeKind
	err     *apperr.Error
	payload cache.Payload
}

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeReject
	outcomeRespond
)

// Continue passes the request to the next stage.
func Continue() Outcome {
	return Outcome{kind: outcomeContinue}
}

// Reject stops the pipeline with err. Unclassified errors become internal
// errors.
func Reject(err error) Outcome {
	e := apperr.As(err)
	if e == nil {
		e = apperr.Internal(nil)
	}
	return Outcome{kind: outcomeReject, err: e}
}

// Respond stops the pipeline and answers with a stored payload.
func Respond(p cache.Payload) Outcome {
	return Outcome{kind: outcomeRespond, payload: p}
}

// IsContinue reports whether the outcome passes the request on.
func (o Outcome) IsContinue() bool { return o.kind == outcomeContinue }

// Err returns the rejection error, or nil.
func (o Outcome) Err() *apperr.Error { return o.err }

// captureWriter buffers a handler's response so it can be hashed, stored
// and answered conditionally before anything reaches the client.
type captureWriter struct {
	gin.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func newCaptureWriter(w gin.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *captureWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *captureWriter) WriteHeaderNow() {
	w.written = true
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *captureWriter) Status() int { return w.status }

func (w *captureWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

func (w *captureWriter) Written() bool { return w.written }

// Flush is a no-op; buffered output is released by commit.
func (w *captureWriter) Flush() {}

// commit sends the buffered response to the client.
func (w *captureWriter) commit() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 && bodyAllowed(w.status) {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
		return
	}
	w.ResponseWriter.WriteHeaderNow()
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
