package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		JWTSigningKey:  "0123456789abcdef0123456789abcdef-test",
		JWTIssuer:      "clinic-api",
		JWTAudience:    "clinic-web",
		JWTTTL:         time.Hour,
		CORSOrigins:    []string{"http://localhost:5500"},
		BodyLimit:      "1M",
		RequestTimeout: 5 * time.Second,
	}
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewEcho_PublicAndProtectedRoutes(t *testing.T) {
	cfg := testConfig()
	e := newEcho(cfg, zerolog.Nop(), nil)
	e.GET("/api/v1/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.SessionFromContext(c.Request().Context()).Username)
	})

	if rec := serve(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health: expected 200, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("/metrics: expected 200, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/ping", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous ping: expected 401, got %d", rec.Code)
	}

	token, _, err := auth.NewTokenIssuer(jwtConfig(cfg), time.Hour).Issue(auth.Session{
		AccountID: uuid.New(),
		Username:  "letan01",
		Role:      auth.RoleReceptionist,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec := serve(e, http.MethodGet, "/api/v1/ping", token)
	if rec.Code != http.StatusOK || rec.Body.String() != "letan01" {
		t.Errorf("authenticated ping: got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestNewEcho_RevokedTokenRejected(t *testing.T) {
	cfg := testConfig()
	revocations := auth.NewRevocationList(cfg.JWTTTL)
	defer revocations.Close()
	e := newEcho(cfg, zerolog.Nop(), revocations)
	e.GET("/api/v1/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	accountID := uuid.New()
	token, _, err := auth.NewTokenIssuer(jwtConfig(cfg), time.Hour).Issue(auth.Session{
		AccountID: accountID,
		Username:  "bs.hoa",
		Role:      auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/ping", token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before revocation, got %d", rec.Code)
	}
	revocations.RevokeAccount(accountID)
	if rec := serve(e, http.MethodGet, "/api/v1/ping", token); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after revocation, got %d", rec.Code)
	}
}

func TestEmailSender(t *testing.T) {
	cfg := testConfig()
	if _, ok := emailSender(cfg, zerolog.Nop()).(notification.LogEmailSender); !ok {
		t.Error("expected the log sender without SMTP_HOST")
	}
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 587
	if _, ok := emailSender(cfg, zerolog.Nop()).(*notification.SMTPEmailSender); !ok {
		t.Error("expected the SMTP sender when SMTP_HOST is set")
	}
}

func TestBookingRules(t *testing.T) {
	cfg := testConfig()
	rules := bookingRules(cfg)
	if rules.LeadTime != 15*time.Minute || rules.ConflictWindow != 29*time.Minute {
		t.Errorf("unexpected defaults: %+v", rules)
	}

	cfg.BookingLeadTime = 30 * time.Minute
	cfg.BookingConflictWindow = 44 * time.Minute
	rules = bookingRules(cfg)
	if rules.LeadTime != 30*time.Minute || rules.ConflictWindow != 44*time.Minute {
		t.Errorf("overrides not applied: %+v", rules)
	}
}

func TestReminderConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ReminderInterval = time.Minute
	cfg.ReminderStartupDelay = 10 * time.Second
	cfg.ReminderWindow = 24 * time.Hour

	rc := reminderConfig(cfg)
	if rc.Interval != time.Minute || rc.StartupDelay != 10*time.Second || rc.Window != 24*time.Hour {
		t.Errorf("unexpected reminder config: %+v", rc)
	}
}
