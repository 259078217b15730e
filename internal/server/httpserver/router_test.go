package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

const routerPassword = "router test password"

func newTestRouter(t *testing.T, mutate func(*RouterConfig)) (http.Handler, *memory.EntryStore) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	reg := metric.NewRegistry()
	deps := service.Deps{Clock: clk, Logger: logger.Discard(), Metrics: reg}

	repo := memory.NewRepository()
	hash, err := service.HashPassword(routerPassword)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AddBuyer(domain.BuyerAccount{
		Buyer:        domain.Buyer{ID: "b-1", Email: "jane@example.com", Name: "Jane", Active: true},
		PasswordHash: hash,
	}); err != nil {
		t.Fatal(err)
	}

	issuer, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		AccessSecret:  []byte("router-access-secret-0123456789abcdef"),
		RefreshSecret: []byte("router-refresh-secret-0123456789abcde"),
	}, repo, deps)
	if err != nil {
		t.Fatal(err)
	}

	entries := memory.NewEntryStore(clk)
	cfg := DefaultRouterConfig()
	cfg.Logger = logger.Discard()
	cfg.Metrics = reg
	cfg.Handler = handler.Config{
		Issuer:      issuer,
		Credentials: service.NewCredentialValidator(repo, issuer, nil, nil, deps),
		Access:      service.NewAccessController(nil, nil, deps),
		Stores: cookiestore.Namespaced{
			Namespace: func(ns string) (service.SecureStore, error) { return entries.Namespace(ns), nil },
			MaxAge:    domain.DefaultRefreshTTL,
		},
		Deps: deps,
	}
	if mutate != nil {
		mutate(cfg)
	}

	h, _ := NewRouter(cfg)
	return h, entries
}

func serve(h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4321"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ServerSideSession(t *testing.T) {
	h, entries := newTestRouter(t, nil)

	rec := serve(h, "POST", "/auth/buyer/login", handler.BuyerLoginRequest{Email: "jane@example.com", Password: routerPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != cookiestore.SIDCookie {
		t.Fatalf("cookies = %+v, want only the sid", cookies)
	}
	if entries.Len() != len(domain.SessionEntries) {
		t.Errorf("server-side entries = %d", entries.Len())
	}

	rec = serve(h, "GET", "/auth/session", nil, cookies[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = serve(h, "POST", "/auth/logout", nil, cookies[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if entries.Len() != 0 {
		t.Errorf("entries after logout = %d", entries.Len())
	}

	rec = serve(h, "GET", "/auth/session", nil, cookies[0])
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("session after logout status = %d", rec.Code)
	}
}

func TestRouter_LoginThrottle(t *testing.T) {
	h, _ := newTestRouter(t, func(cfg *RouterConfig) {
		cfg.LoginRatePerMinute = 1
		cfg.LoginBurst = 2
	})

	bad := handler.BuyerLoginRequest{Email: "jane@example.com", Password: "wrong"}
	for i := 0; i < 2; i++ {
		if rec := serve(h, "POST", "/auth/buyer/login", bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
	}
	rec := serve(h, "POST", "/auth/buyer/login", bad)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("throttled status = %d, Retry-After = %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	// Other endpoints are not throttled.
	if rec := serve(h, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestRouter_AdminAllowList(t *testing.T) {
	h, _ := newTestRouter(t, func(cfg *RouterConfig) {
		cfg.AdminAllowList = []string{"10.0.0.0/8"}
	})

	rec := serve(h, "GET", "/admin/v1/access/stats", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	var env handler.Response
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Details != "IP not in allowlist" {
		t.Errorf("details = %v", env.Details)
	}
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	serve(h, "GET", "/health", nil)
	serve(h, "GET", "/auth/session", nil)

	rec := serve(h, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`authcore_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`authcore_http_requests_total{method="GET",route="/auth/session",status="401"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
