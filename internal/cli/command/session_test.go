package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/authcore-go/internal/cli/connection"
	"github.com/yndnr/authcore-go/internal/core/domain"
)

func loginBuyer(t *testing.T, h *harness) sessionView {
	t.Helper()
	var v sessionView
	h.mustRun("login", "buyer", "--email", "jane@example.com", "--password", testPassword).decode(t, &v)
	return v
}

func TestSessionStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)

	r := h.run("session", "status")
	if !errors.Is(r.err, domain.ErrNoSession) {
		t.Fatalf("status without login: error = %v", r.err)
	}

	created := loginBuyer(t, h)

	var v sessionView
	h.mustRun("session", "status").decode(t, &v)
	if v.ID != created.ID || v.Subject != "b-1" || v.Kind != domain.KindBuyer {
		t.Errorf("status = %+v, want session %s", v, created.ID)
	}
	if v.ExpiresIn == "expired" {
		t.Errorf("fresh session reported expired: %+v", v)
	}
}

func TestSessionStatus_TableOutput(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)
	loginBuyer(t, h)

	r := h.mustRun("--output", "table", "session", "status")
	for _, want := range []string{"FIELD", "kind", "buyer", "display_name", "Jane"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("table output missing %q:\n%s", want, r.stdout)
		}
	}
	if strings.Contains(r.stdout, "refresh_expires_at") {
		t.Errorf("wide-only field shown without --wide:\n%s", r.stdout)
	}
}

func TestSessionRefresh(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)

	if r := h.run("session", "refresh"); !errors.Is(r.err, domain.ErrNoSession) {
		t.Fatalf("refresh without login: error = %v", r.err)
	}

	created := loginBuyer(t, h)

	var v sessionView
	h.mustRun("session", "refresh").decode(t, &v)
	if v.ID != created.ID {
		t.Errorf("refresh changed session id: %s -> %s", created.ID, v.ID)
	}

	after, ok := h.jarEntry(domain.EntryAccessToken)
	if !ok || after == "" {
		t.Fatal("access token missing after refresh")
	}
	if refresh, _ := h.jarEntry(domain.EntryRefreshToken); refresh == "" {
		t.Error("refresh token dropped")
	}
}

func TestSessionLogout(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)
	loginBuyer(t, h)

	refreshToken, ok := h.jarEntry(domain.EntryRefreshToken)
	if !ok {
		t.Fatal("no refresh token stored")
	}

	var v logoutView
	h.mustRun("session", "logout").decode(t, &v)
	if !v.LoggedOut {
		t.Errorf("logout = %+v", v)
	}

	for _, name := range domain.SessionEntries {
		if _, ok := h.jarEntry(name); ok {
			t.Errorf("jar entry %s left after logout", name)
		}
	}

	// The server revoked the refresh token.
	auth := connection.NewRemoteAuthority(connection.NewHTTPClient(srv.URL))
	if _, err := auth.Refresh(context.Background(), refreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Errorf("refresh after logout: error = %v", err)
	}

	// Logging out twice is fine.
	h.mustRun("session", "logout")
}

func TestSessionStatus_ServerDownKeepsSession(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)
	loginBuyer(t, h)
	srv.Close()

	r := h.run("session", "status")
	wantKind(t, r.err, domain.KindNetworkError)
	if ExitCode(r.err) != 3 {
		t.Errorf("exit code = %d", ExitCode(r.err))
	}
	if _, ok := h.jarEntry(domain.EntryRefreshToken); !ok {
		t.Error("session dropped while the server was unreachable")
	}
}

func TestSessionWatch(t *testing.T) {
	srv := newTestServer(t, nil)
	h := newHarness(t, srv.URL)

	if r := h.run("session", "watch", "--for", "50ms"); !errors.Is(r.err, domain.ErrNoSession) {
		t.Fatalf("watch without login: error = %v", r.err)
	}

	created := loginBuyer(t, h)
	r := h.mustRun("session", "watch", "--for", "50ms")
	if !strings.Contains(r.stderr, "watching "+created.ID) {
		t.Errorf("stderr = %q", r.stderr)
	}
	if _, ok := h.jarEntry(domain.EntryRefreshToken); !ok {
		t.Error("watch cleared the session")
	}
}
