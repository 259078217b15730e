package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) handler.Response {
	t.Helper()
	var resp handler.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body)
	}
	return resp
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		requestID := rec.Header().Get("X-Request-ID")
		if !strings.HasPrefix(requestID, "req-") || len(requestID) != len("req-")+26 {
			t.Errorf("request ID = %q", requestID)
		}
		if seen != requestID {
			t.Errorf("context request ID = %q, header = %q", seen, requestID)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "existing-id-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "existing-id-123" {
			t.Errorf("expected 'existing-id-123', got %s", got)
		}
	})

	t.Run("replaces malformed request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 100))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req-") {
			t.Errorf("oversized request ID kept: %q", got)
		}
	})
}

func TestChain(t *testing.T) {
	var order []int
	mark := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, 4)
		w.WriteHeader(http.StatusOK)
	}), mark(1), mark(2), mark(3))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	expected := []int{1, 2, 3, 4}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("expected order[%d] = %d, got %d", i, v, order[i])
		}
	}
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name       string
		allow      []string
		remote     string
		forwarded  string
		trustProxy bool
		want       int
	}{
		{"empty allowlist", nil, "192.168.1.100:12345", "", false, http.StatusOK},
		{"single IP", []string{"192.168.1.100"}, "192.168.1.100:12345", "", false, http.StatusOK},
		{"CIDR", []string{"10.0.0.0/8"}, "10.1.2.3:12345", "", false, http.StatusOK},
		{"not listed", []string{"192.168.1.0/24"}, "10.0.0.1:12345", "", false, http.StatusForbidden},
		{"IPv6", []string{"2001:db8::/32"}, "[2001:db8::1]:12345", "", false, http.StatusOK},
		{"forwarded ignored", []string{"10.0.0.0/8"}, "203.0.113.9:1", "10.0.0.1", false, http.StatusForbidden},
		{"forwarded trusted", []string{"10.0.0.0/8"}, "203.0.113.9:1", "10.0.0.1", true, http.StatusOK},
		{"invalid entries skipped", []string{"nope", "10.0.0.0/99"}, "10.0.0.1:1", "", false, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NetworkACL(&NetworkACLConfig{
				AllowList:  tt.allow,
				TrustProxy: tt.trustProxy,
				Logger:     logger.Discard(),
			})(okHandler)

			req := httptest.NewRequest("GET", "/admin/v1/access/log", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				if env := decodeEnvelope(t, rec); env.Code != "AC-ACCS-4030" {
					t.Errorf("code = %s", env.Code)
				}
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	h := LoginRateLimit(service.NewRateLimiterRegistry(6, 2), false)(okHandler)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/auth/admin/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := send("10.0.0.1:2")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want 10", got)
	}
	if env := decodeEnvelope(t, rec); env.Code != "AC-AUTH-4290" {
		t.Errorf("code = %s", env.Code)
	}

	if rec := send("10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("test panic")
		}), Recover(logger.Discard()), RequestID(nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if env.Code != "AC-SYS-5000" || rec.Header().Get("X-Error-Code") != "AC-SYS-5000" {
			t.Errorf("envelope = %+v", env)
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recover(logger.Discard())(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	mw := CORS([]string{"https://shop.example.com/"})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/session", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		rec := httptest.NewRecorder()
		mw(okHandler).ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "https://shop.example.com" {
			t.Error("expected Access-Control-Allow-Origin header")
		}
		if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("expected credentials to be allowed")
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/auth/buyer/login", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		mw(okHandler).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
			t.Error("expected POST in allowed methods")
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/auth/buyer/login", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		mw(okHandler).ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("should not add CORS header for non-allowed origin")
		}
		if rec.Code == http.StatusNoContent {
			t.Error("preflight for non-allowed origin should not be answered")
		}
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		trust   bool
		want    string
	}{
		{"X-Forwarded-For trusted", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, true, "10.0.0.1"},
		{"X-Real-IP trusted", map[string]string{"X-Real-IP": "10.0.0.1"}, true, "10.0.0.1"},
		{"headers untrusted", map[string]string{"X-Forwarded-For": "10.0.0.1"}, false, "192.168.1.1"},
		{"RemoteAddr", nil, true, "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trust); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	run := func(status int) string {
		buf.Reset()
		h := Audit(false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if status >= 400 {
				w.Header().Set("X-Error-Code", "AC-TEST-4000")
			}
			w.WriteHeader(status)
		}))
		req := httptest.NewRequest("GET", "/test", nil)
		ctx := logger.WithLogger(req.Context(), log)
		ctx = logger.WithRequestID(ctx, "test-req-123")
		ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())
		h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))
		return buf.String()
	}

	if out := run(http.StatusOK); !strings.Contains(out, "request completed") || !strings.Contains(out, "request_id=test-req-123") {
		t.Errorf("success log = %s", out)
	}
	if out := run(http.StatusBadRequest); !strings.Contains(out, "client error") || !strings.Contains(out, "error_code=AC-TEST-4000") {
		t.Errorf("client error log = %s", out)
	}
	if out := run(http.StatusInternalServerError); !strings.Contains(out, "level=ERROR") {
		t.Errorf("server error log = %s", out)
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	reg := metric.NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Chain(mux, RequestID(nil), Metrics(reg))

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("GET", "/items/{id}", "204")); got != 2 {
		t.Errorf("pattern counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched counter = %v, want 1", got)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures first status code", func(t *testing.T) {
		wrapped := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
		wrapped.WriteHeader(http.StatusCreated)
		wrapped.WriteHeader(http.StatusInternalServerError)
		if wrapped.statusCode != http.StatusCreated {
			t.Errorf("expected status 201, got %d", wrapped.statusCode)
		}
	})

	t.Run("write implies 200", func(t *testing.T) {
		wrapped := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
		wrapped.Write([]byte("ok"))
		wrapped.WriteHeader(http.StatusTeapot)
		if wrapped.statusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", wrapped.statusCode)
		}
	})
}
