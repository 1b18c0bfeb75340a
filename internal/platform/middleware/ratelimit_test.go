package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func doRequest(e *echo.Echo, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitBurstThenThrottle(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if code := doRequest(e, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, code)
		}
	}
	if code := doRequest(e, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	if code := doRequest(e, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first client: got %d", code)
	}
	if code := doRequest(e, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("first client exhausted: got %d", code)
	}
	// A different client has its own bucket.
	if code := doRequest(e, "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("second client: got %d", code)
	}
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	s.get("10.0.0.1")

	// Age the entry past the idle cutoff and make the next lookup sweep.
	s.mu.Lock()
	s.limiters["10.0.0.1"].lastSeen = time.Now().Add(-4 * time.Minute)
	s.lastSweep = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	s.get("10.0.0.2")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.limiters["10.0.0.1"]; ok {
		t.Error("idle client entry should have been evicted")
	}
	if _, ok := s.limiters["10.0.0.2"]; !ok {
		t.Error("active client entry should remain")
	}
}
