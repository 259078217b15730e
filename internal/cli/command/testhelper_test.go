package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/authcore-go/internal/cli/connection"
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/server/httpserver"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

const testPassword = "correct horse battery"

// newTestServer runs a real authcore-server router over the given session
// store factory; nil selects the cookie backend.
func newTestServer(t *testing.T, stores handler.StoreFactory) *httptest.Server {
	t.Helper()
	deps := service.Deps{Logger: logger.Discard()}

	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatal(err)
	}
	repo := memory.NewRepository()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(repo.AddBuyer(domain.BuyerAccount{
		Buyer:        domain.Buyer{ID: "b-1", Email: "jane@example.com", Name: "Jane", Active: true},
		PasswordHash: hash,
	}))
	must(repo.AddMerchant(domain.MerchantAccount{
		Merchant:     domain.Merchant{ID: "m-1", StoreName: "Corner Shop", CompanyName: "Corner Co", Email: "shop@example.com", Active: true},
		PasswordHash: hash,
	}))
	must(repo.AddAdministrator(domain.AdministratorAccount{
		Administrator: domain.Administrator{ID: "a-1", Username: "ops", Active: true},
		PasswordHash:  hash,
	}))

	issuer, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		AccessSecret:  []byte("cli-test-access-secret-0123456789abcd"),
		RefreshSecret: []byte("cli-test-refresh-secret-0123456789abc"),
	}, repo, deps)
	must(err)

	if stores == nil {
		stores = cookiestore.Cookies{}
	}
	cfg := httpserver.DefaultRouterConfig()
	cfg.Logger = logger.Discard()
	cfg.Handler = handler.Config{
		Issuer:      issuer,
		Credentials: service.NewCredentialValidator(repo, issuer, nil, nil, deps),
		Access:      service.NewAccessController(nil, nil, deps),
		Stores:      stores,
		Deps:        deps,
	}
	h, _ := httpserver.NewRouter(cfg)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// cliRun is one authcore-cli invocation.
type cliRun struct {
	stdout string
	stderr string
	err    error
}

// decode unmarshals the JSON stdout into v.
func (r cliRun) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(r.stdout), v); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, r.stdout)
	}
}

// harness runs the CLI against one server with a private jar and config.
type harness struct {
	t      *testing.T
	server string
	dir    string
	stdin  string
}

func newHarness(t *testing.T, server string) *harness {
	return &harness{t: t, server: server, dir: t.TempDir()}
}

func (h *harness) jarDir() string     { return filepath.Join(h.dir, "jar") }
func (h *harness) configPath() string { return filepath.Join(h.dir, "cli.yaml") }

func (h *harness) run(args ...string) cliRun {
	h.t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(h.stdin)

	full := append([]string{
		"authcore-cli",
		"--config", h.configPath(),
		"--server", h.server,
		"--jar", h.jarDir(),
		"--output", "json",
	}, args...)
	err := app.Run(full)
	return cliRun{stdout: out.String(), stderr: errOut.String(), err: err}
}

// mustRun runs the CLI and fails the test on error.
func (h *harness) mustRun(args ...string) cliRun {
	h.t.Helper()
	r := h.run(args...)
	if r.err != nil {
		h.t.Fatalf("authcore-cli %v: %v\nstderr: %s", args, r.err, r.stderr)
	}
	return r
}

// jarEntry reads a raw entry from the credential jar.
func (h *harness) jarEntry(name string) (string, bool) {
	h.t.Helper()
	cfg := storage.DefaultBadgerConfig(h.jarDir())
	cfg.GCInterval = 0
	store, err := storage.OpenBadger(cfg, logger.Discard())
	if err != nil {
		h.t.Fatal(err)
	}
	defer store.Close()

	jar, err := store.Namespace("server:" + connection.NewHTTPClient(h.server).BaseURL())
	if err != nil {
		h.t.Fatal(err)
	}
	v, ok, err := jar.Get(context.Background(), name)
	if err != nil {
		h.t.Fatal(err)
	}
	return v, ok
}

// wantKind fails unless err carries the given taxonomy kind.
func wantKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", kind)
	}
	if got := domain.GetErrorKind(err); got != kind {
		t.Fatalf("error = %v (kind %s), want %s", err, got, kind)
	}
}
