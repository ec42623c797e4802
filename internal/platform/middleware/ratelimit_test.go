package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
)

func limitedRequest(h echo.HandlerFunc, user string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/beds", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if user != "" {
		req = req.WithContext(auth.WithUser(req.Context(), user, nil))
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec, err := limitedRequest(h, "")
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "1" {
			t.Errorf("request %d: missing X-RateLimit-Limit", i+1)
		}
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})(func(c echo.Context) error {
		return nil
	})

	for i := 0; i < 2; i++ {
		if _, err := limitedRequest(h, ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	rec, err := limitedRequest(h, "")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_SeparateBucketsPerUser(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})(func(c echo.Context) error {
		return nil
	})

	if _, err := limitedRequest(h, "surgeon-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := limitedRequest(h, "surgeon-2"); err != nil {
		t.Fatalf("second user should have its own bucket: %v", err)
	}
	if _, err := limitedRequest(h, "surgeon-1"); err == nil {
		t.Fatal("expected surgeon-1 to be limited")
	}
}

func TestRateLimit_ZeroBurstRejects(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 0})(func(c echo.Context) error {
		return nil
	})
	if _, err := limitedRequest(h, ""); err == nil {
		t.Fatal("expected rejection with zero burst")
	}
}
