package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/config"
	"github.com/carebenefits/platform/internal/platform/lock"
	"github.com/carebenefits/platform/internal/platform/websocket"
)

func testApp() *app {
	return &app{
		cfg: &config.Config{
			Env:            "development",
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: time.Second,
		},
		logger: zerolog.Nop(),
		locker: lock.NewMemory(),
		hub:    websocket.NewHub(zerolog.Nop()),
	}
}

func TestNewRouter_Routes(t *testing.T) {
	e := newRouter(testApp())
	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /health/db",
		"GET /metrics",
		"GET /ws",
		"GET /api/v1/me",
		"POST /api/v1/enterprise/verification",
		"POST /api/v1/reimbursement_wallet/:id/requests",
		"POST /api/v1/reimbursement_requests/:id/sources",
		"POST /api/v1/accumulation/reports",
		"POST /api/v1/admin/gdpr/users/:id/delete",
	} {
		if !have[want] {
			t.Errorf("missing route %s", want)
		}
	}
}

func TestNewRouter_Health(t *testing.T) {
	e := newRouter(testApp())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestJWTConfig(t *testing.T) {
	jc := jwtConfig(&config.Config{AuthIssuer: "https://id.example.com", AuthJWKSURL: "https://id.example.com/jwks"})
	if jc.SigningKey != nil || jc.JWKSURL == "" || jc.Skipper == nil {
		t.Errorf("unexpected config %+v", jc)
	}
	jc = jwtConfig(&config.Config{AuthSigningKey: "secret"})
	if string(jc.SigningKey) != "secret" {
		t.Errorf("expected signing key, got %q", jc.SigningKey)
	}
}
