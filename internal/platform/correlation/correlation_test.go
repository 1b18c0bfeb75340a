package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestFromContext_Empty(t *testing.T) {
	cc := FromContext(context.Background())
	if cc.CorrelationID != "" || cc.RequestID != "" {
		t.Errorf("expected zero bundle, got %+v", cc)
	}
}

func TestWithAndFromContext(t *testing.T) {
	cc := Context{CorrelationID: "corr", CausationID: "cause", SessionID: "sess", RequestID: "req"}
	got := FromContext(With(context.Background(), cc))
	if got != cc {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestChild_RepointsCausation(t *testing.T) {
	ctx := With(context.Background(), Context{CorrelationID: "corr", CausationID: "corr"})
	child := FromContext(Child(ctx, "evt-1"))
	if child.CorrelationID != "corr" {
		t.Errorf("correlation id changed: %s", child.CorrelationID)
	}
	if child.CausationID != "evt-1" {
		t.Errorf("expected causation evt-1, got %s", child.CausationID)
	}
}

func TestMiddleware_SeedsFreshBundle(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Context
	h := Middleware()(func(c echo.Context) error {
		got = FromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.CorrelationID == "" || got.RequestID == "" {
		t.Errorf("expected generated ids, got %+v", got)
	}
	if got.CausationID != got.CorrelationID {
		t.Errorf("fresh request should be its own cause, got %+v", got)
	}
	if rec.Header().Get("X-Correlation-ID") != got.CorrelationID {
		t.Error("correlation id not echoed back")
	}
}

func TestMiddleware_HonorsInboundHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-7")
	req.Header.Set("X-Causation-ID", "evt-9")
	req.Header.Set("X-Session-ID", "sess-2")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Context
	h := Middleware()(func(c echo.Context) error {
		got = FromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.CorrelationID != "corr-7" || got.CausationID != "evt-9" || got.SessionID != "sess-2" {
		t.Errorf("inbound headers not honored: %+v", got)
	}
}

func TestMiddleware_NoLeakAcrossRequests(t *testing.T) {
	e := echo.New()
	mw := Middleware()

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			h := mw(func(c echo.Context) error {
				cc := FromContext(c.Request().Context())
				mu.Lock()
				defer mu.Unlock()
				if seen[cc.RequestID] {
					t.Errorf("request id %s reused", cc.RequestID)
				}
				seen[cc.RequestID] = true
				return nil
			})
			if err := h(c); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
}
