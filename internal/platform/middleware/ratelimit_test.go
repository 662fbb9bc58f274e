package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func serveLimited(t *testing.T, h echo.HandlerFunc, remoteAddr string, session *auth.Session) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	req.RemoteAddr = remoteAddr
	if session != nil {
		req = req.WithContext(auth.WithSession(req.Context(), session))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})(okHandler)

	for i := 0; i < 3; i++ {
		rec := serveLimited(t, h, "10.0.0.1:1234", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})(okHandler)

	serveLimited(t, h, "10.0.0.1:1234", nil)
	serveLimited(t, h, "10.0.0.1:1234", nil)
	rec := serveLimited(t, h, "10.0.0.1:1234", nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Errorf("expected Retry-After 2, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})(okHandler)

	if rec := serveLimited(t, h, "10.0.0.1:1234", nil); rec.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", rec.Code)
	}
	if rec := serveLimited(t, h, "10.0.0.2:1234", nil); rec.Code != http.StatusOK {
		t.Fatalf("second client: expected 200, got %d", rec.Code)
	}
	if rec := serveLimited(t, h, "10.0.0.1:1234", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first client again: expected 429, got %d", rec.Code)
	}
}

func TestRateLimit_AuthenticatedKeyedByAccount(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})(okHandler)
	alice := &auth.Session{AccountID: uuid.New(), Role: auth.RoleReceptionist}
	bob := &auth.Session{AccountID: uuid.New(), Role: auth.RoleReceptionist}

	// Same IP, different accounts.
	if rec := serveLimited(t, h, "10.0.0.9:1", alice); rec.Code != http.StatusOK {
		t.Fatalf("alice: expected 200, got %d", rec.Code)
	}
	if rec := serveLimited(t, h, "10.0.0.9:1", bob); rec.Code != http.StatusOK {
		t.Fatalf("bob: expected 200, got %d", rec.Code)
	}
	if rec := serveLimited(t, h, "10.0.0.9:1", alice); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("alice again: expected 429, got %d", rec.Code)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.get("a")
	store.get("b")
	if store.size() != 2 {
		t.Fatalf("expected 2 limiters, got %d", store.size())
	}

	now = now.Add(2 * time.Minute)
	store.get("c")
	if store.size() != 1 {
		t.Errorf("expected idle limiters evicted, got %d", store.size())
	}
}

func TestLimiterStore_ReusesLimiter(t *testing.T) {
	store := newLimiterStore(DefaultRateLimitConfig())
	if store.get("k") != store.get("k") {
		t.Error("expected same limiter for the same key")
	}
}
