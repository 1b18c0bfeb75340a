// Package correlation carries the request-scoped identifier bundle that
// links every audit event back to the inbound request that caused it. The
// bundle travels in context.Context, never in package globals, so ids cannot
// leak between concurrently handled requests.
package correlation

import (
	"context"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

// Context is the identifier bundle for one logical request.
type Context struct {
	CorrelationID string
	CausationID   string
	SessionID     string
	RequestID     string
}

type ctxKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a lexicographically sortable identifier.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// With returns a context carrying cc.
func With(ctx context.Context, cc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, cc)
}

// FromContext returns the bundle for the current request. A context without
// one yields the zero value; event recording still works, just unlinked.
func FromContext(ctx context.Context) Context {
	cc, _ := ctx.Value(ctxKey{}).(Context)
	return cc
}

// Child derives a context for an internal action triggered by the event with
// id parentEventID: same correlation chain, causation re-pointed at the
// triggering event.
func Child(ctx context.Context, parentEventID string) context.Context {
	cc := FromContext(ctx)
	cc.CausationID = parentEventID
	return With(ctx, cc)
}

// Middleware seeds the bundle for each inbound HTTP request. An existing
// X-Correlation-ID header is honored so multi-hop calls stay linked; the
// request id always gets a fresh value.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			cc := Context{
				CorrelationID: req.Header.Get("X-Correlation-ID"),
				CausationID:   req.Header.Get("X-Causation-ID"),
				SessionID:     req.Header.Get("X-Session-ID"),
				RequestID:     NewID(),
			}
			if cc.CorrelationID == "" {
				cc.CorrelationID = NewID()
			}
			if cc.CausationID == "" {
				// A fresh external request is its own cause.
				cc.CausationID = cc.CorrelationID
			}

			c.Response().Header().Set("X-Correlation-ID", cc.CorrelationID)
			c.Response().Header().Set("X-Request-ID", cc.RequestID)
			c.Set("request_id", cc.RequestID)

			c.SetRequest(req.WithContext(With(req.Context(), cc)))
			return next(c)
		}
	}
}
