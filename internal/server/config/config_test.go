package config

import (
	"strings"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

func validConfig() *ServerConfig {
	cfg := Default()
	cfg.Tokens.AccessSecret = testAccessSecret
	cfg.Tokens.RefreshSecret = testRefreshSecret
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Tokens.AccessTTL != 15*time.Minute || cfg.Tokens.RefreshTTL != 7*24*time.Hour {
		t.Errorf("token TTLs = %v / %v", cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	}
	if cfg.Lockout.Threshold != 3 || cfg.Access.AuditCapacity != 1000 {
		t.Errorf("lockout/audit defaults = %d / %d", cfg.Lockout.Threshold, cfg.Access.AuditCapacity)
	}
	if cfg.Storage.Backend != BackendCookie || cfg.Storage.Principals != PrincipalsMemory {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if !cfg.Cookies.Secure {
		t.Error("cookies should default to Secure")
	}

	// Secrets are never defaulted.
	if err := Verify(cfg); err == nil {
		t.Error("Verify(Default()) should fail without secrets")
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"short access secret", func(c *ServerConfig) { c.Tokens.AccessSecret = "short" }, "access_secret"},
		{"short refresh secret", func(c *ServerConfig) { c.Tokens.RefreshSecret = "short" }, "refresh_secret"},
		{"equal secrets", func(c *ServerConfig) { c.Tokens.RefreshSecret = c.Tokens.AccessSecret }, "must differ"},
		{"access ttl not shorter", func(c *ServerConfig) { c.Tokens.AccessTTL = c.Tokens.RefreshTTL }, "access_ttl"},
		{"threshold not shorter", func(c *ServerConfig) { c.Session.RefreshThreshold = c.Tokens.AccessTTL }, "refresh_threshold"},
		{"lockout threshold", func(c *ServerConfig) { c.Lockout.Threshold = 0 }, "lockout.threshold"},
		{"audit capacity", func(c *ServerConfig) { c.Access.AuditCapacity = 0 }, "audit_capacity"},
		{"half tls", func(c *ServerConfig) { c.HTTP.TLSCertFile = "cert.pem" }, "set together"},
		{"missing tls files", func(c *ServerConfig) {
			c.HTTP.TLSCertFile, c.HTTP.TLSKeyFile = "/nonexistent/cert.pem", "/nonexistent/key.pem"
		}, "tls file"},
		{"bad admin cidr", func(c *ServerConfig) { c.HTTP.AdminAllowList = []string{"10.0.0.0/99"} }, "admin_allow_list"},
		{"bad admin ip", func(c *ServerConfig) { c.HTTP.AdminAllowList = []string{"not-an-ip"} }, "admin_allow_list"},
		{"unknown backend", func(c *ServerConfig) { c.Storage.Backend = "etcd" }, "storage.backend"},
		{"redis without addrs", func(c *ServerConfig) { c.Storage.Backend = BackendRedis }, "redis.addrs"},
		{"redis with addrs", func(c *ServerConfig) {
			c.Storage.Backend = BackendRedis
			c.Redis.Addrs = []string{"127.0.0.1:6379"}
		}, ""},
		{"unknown principals", func(c *ServerConfig) { c.Storage.Principals = "ldap" }, "storage.principals"},
		{"sqlite without path", func(c *ServerConfig) {
			c.Storage.Principals = PrincipalsSQLite
			c.Storage.SQLitePath = ""
		}, "sqlite_path"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "hunter2hunter2"
	cfg.Accounts.Administrators = []AdministratorSeed{{ID: "a-1", Username: "root", PasswordHash: "$argon2id$v=19$m=16384,t=2,p=2$salt$hash"}}

	s := Sanitize(cfg)

	if s.Tokens.AccessSecret == cfg.Tokens.AccessSecret || strings.Contains(s.Tokens.AccessSecret, "secret-access") {
		t.Errorf("access secret not masked: %q", s.Tokens.AccessSecret)
	}
	if !strings.HasPrefix(s.Tokens.RefreshSecret, "re") || !strings.Contains(s.Tokens.RefreshSecret, "***") {
		t.Errorf("refresh secret = %q", s.Tokens.RefreshSecret)
	}
	if s.Redis.Password == cfg.Redis.Password {
		t.Error("redis password not masked")
	}
	if s.Accounts.Administrators[0].PasswordHash == cfg.Accounts.Administrators[0].PasswordHash {
		t.Error("seed password hash not masked")
	}

	// The original is untouched.
	if cfg.Tokens.AccessSecret != testAccessSecret {
		t.Error("Sanitize mutated its input")
	}
	if !strings.HasPrefix(cfg.Accounts.Administrators[0].PasswordHash, "$argon2id") {
		t.Error("Sanitize mutated seed accounts")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"abc":    "****",
		"abcdef": "ab**ef",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Tokens.RotateRefreshTokens = true
	cfg.Access.PublicRoutes = []string{"/", "/docs/*"}
	cfg.Accounts.Buyers = []BuyerSeed{{ID: "b-1", Email: "jane@example.com", Name: "Jane", PasswordHash: "h"}}
	cfg.Accounts.Merchants = []MerchantSeed{{ID: "m-1", StoreName: "Acme", CompanyName: "Acme Ltd", Disabled: true}}

	ti := cfg.TokenIssuerConfig()
	if string(ti.AccessSecret) != testAccessSecret || !ti.RotateRefreshTokens || ti.Permissions == nil {
		t.Errorf("TokenIssuerConfig() = %+v", ti)
	}

	sc := cfg.SessionConfig()
	if sc.RenewalInterval != 0 || !sc.SecureEntries || sc.RefreshThreshold != DefaultRefreshThreshold {
		t.Errorf("SessionConfig() = %+v", sc)
	}

	if cc := cfg.CredentialConfig(); cc.Lockout.Threshold != 3 || cc.Lockout.Cooldown != 15*time.Minute {
		t.Errorf("CredentialConfig() = %+v", cc)
	}

	ac := cfg.AccessConfig()
	if len(ac.PublicRoutes) != 2 || ac.AuditCapacity != 1000 || len(ac.Policy) == 0 {
		t.Errorf("AccessConfig() = %+v", ac)
	}

	buyers, merchants, admins := cfg.SeedAccounts()
	if len(buyers) != 1 || !buyers[0].Active || buyers[0].Kind() != domain.KindBuyer {
		t.Errorf("buyers = %+v", buyers)
	}
	if len(merchants) != 1 || merchants[0].Active {
		t.Errorf("disabled merchant should be inactive: %+v", merchants)
	}
	if len(admins) != 0 {
		t.Errorf("admins = %+v", admins)
	}
}
