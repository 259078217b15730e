package command

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
	"github.com/yndnr/authcore-go/internal/storage/memory"
)

func TestLogin_Buyer(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)

	var v sessionView
	h.mustRun("login", "buyer", "--email", "jane@example.com", "--password", testPassword).decode(t, &v)

	if v.Kind != domain.KindBuyer || v.Subject != "b-1" || v.DisplayName != "Jane" {
		t.Errorf("session = %+v", v)
	}
	if !domain.IsValidSessionID(v.ID) || v.State != "active" {
		t.Errorf("id = %q, state = %q", v.ID, v.State)
	}

	for _, name := range domain.SessionEntries {
		if _, ok := h.jarEntry(name); !ok {
			t.Errorf("jar entry %s missing", name)
		}
	}
}

func TestLogin_MerchantAndAdmin(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)

	var v sessionView
	h.mustRun("login", "merchant", "--store", "corner shop", "--company", "CORNER CO", "--password", testPassword).decode(t, &v)
	if v.Kind != domain.KindMerchant || v.DisplayName != "Corner Shop" {
		t.Errorf("merchant session = %+v", v)
	}

	h.mustRun("login", "admin", "--username", "ops", "--password", testPassword).decode(t, &v)
	if v.Kind != domain.KindAdministrator || v.Subject != "a-1" {
		t.Errorf("admin session = %+v", v)
	}
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)
	h.stdin = testPassword + "\n"

	r := h.mustRun("login", "admin", "--username", "ops")
	if !strings.Contains(r.stderr, "Password: ") {
		t.Errorf("no prompt on stderr: %q", r.stderr)
	}
}

func TestLogin_Failures(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name string
		args []string
		kind domain.ErrorKind
		code string
	}{
		{
			name: "wrong password",
			args: []string{"login", "buyer", "--email", "jane@example.com", "--password", "nope"},
			kind: domain.KindInvalidCredentials,
			code: domain.ErrInvalidCredentials.Code,
		},
		{
			name: "unknown user reads as wrong password",
			args: []string{"login", "admin", "--username", "nobody", "--password", "nope"},
			kind: domain.KindInvalidCredentials,
			code: domain.ErrInvalidCredentials.Code,
		},
		{
			name: "malformed email",
			args: []string{"login", "buyer", "--email", "not-an-email", "--password", "x"},
			kind: domain.KindInvalidCredentials,
			code: domain.ErrMalformedCredentials.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, srv.URL)
			r := h.run(tt.args...)
			wantKind(t, r.err, tt.kind)
			if code := domain.GetErrorCode(r.err); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
			if _, ok := h.jarEntry(domain.EntryRefreshToken); ok {
				t.Error("failed login stored a session")
			}
		})
	}
}

func TestLogin_ServerSideBackendRejected(t *testing.T) {
	entries := memory.NewEntryStore(nil)
	srv := newTestServer(t, cookiestore.Namespaced{
		Namespace: func(ns string) (service.SecureStore, error) { return entries.Namespace(ns), nil },
	})
	h := newHarness(t, srv.URL)

	r := h.run("login", "buyer", "--email", "jane@example.com", "--password", testPassword)
	if !errors.Is(r.err, errServerSideSessions) {
		t.Fatalf("error = %v", r.err)
	}
}

func TestTokensFromCookies(t *testing.T) {
	out := &loginResponse{AccessExpiresAt: 100, RefreshExpiresAt: 200}

	pair, err := tokensFromCookies([]*http.Cookie{
		{Name: domain.EntryAccessToken, Value: cookiestore.Encode("at")},
		{Name: domain.EntryRefreshToken, Value: cookiestore.Encode("rt")},
		{Name: domain.EntryPrincipalSummary, Value: cookiestore.Encode("{}")},
	}, out)
	if err != nil {
		t.Fatalf("tokensFromCookies: %v", err)
	}
	if pair.AccessToken != "at" || pair.RefreshToken != "rt" || pair.AccessExpiresAt != 100 || pair.RefreshExpiresAt != 200 {
		t.Errorf("pair = %+v", pair)
	}

	_, err = tokensFromCookies([]*http.Cookie{{Name: domain.EntryAccessToken, Value: cookiestore.Encode("at")}}, out)
	if !errors.Is(err, domain.ErrTokenMissing) {
		t.Errorf("missing refresh: error = %v", err)
	}

	_, err = tokensFromCookies([]*http.Cookie{{Name: domain.EntryAccessToken, Value: "%%%"}}, out)
	if !domain.IsKind(err, domain.KindTokenInvalid) {
		t.Errorf("bad encoding: error = %v", err)
	}
}
