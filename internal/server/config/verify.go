package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyTokens(&cfg.Tokens); err != nil {
		return err
	}
	if err := verifySession(&cfg.Session, &cfg.Tokens); err != nil {
		return err
	}
	if err := verifyAccess(cfg); err != nil {
		return err
	}
	if err := verifyHTTP(&cfg.HTTP); err != nil {
		return err
	}
	if err := verifyStorage(cfg); err != nil {
		return err
	}
	if !logger.IsValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	return nil
}

func verifyTokens(t *TokensSection) error {
	if len(t.AccessSecret) < service.MinSecretLength {
		return fmt.Errorf("tokens.access_secret must be at least %d bytes", service.MinSecretLength)
	}
	if len(t.RefreshSecret) < service.MinSecretLength {
		return fmt.Errorf("tokens.refresh_secret must be at least %d bytes", service.MinSecretLength)
	}
	if t.AccessSecret == t.RefreshSecret {
		return errors.New("tokens.access_secret and tokens.refresh_secret must differ")
	}
	if t.AccessTTL <= 0 || t.RefreshTTL <= 0 {
		return errors.New("tokens.access_ttl and tokens.refresh_ttl must be positive")
	}
	if t.AccessTTL >= t.RefreshTTL {
		return errors.New("tokens.access_ttl must be shorter than tokens.refresh_ttl")
	}
	return nil
}

func verifySession(s *SessionSection, t *TokensSection) error {
	if s.RenewalInterval < 0 {
		return errors.New("session.renewal_interval must not be negative")
	}
	if s.RefreshThreshold >= t.AccessTTL {
		return errors.New("session.refresh_threshold must be shorter than tokens.access_ttl")
	}
	if s.BackoffBase > 0 && s.BackoffMax > 0 && s.BackoffBase > s.BackoffMax {
		return errors.New("session.backoff_base must not exceed session.backoff_max")
	}
	return nil
}

func verifyAccess(cfg *ServerConfig) error {
	if cfg.Lockout.Threshold < 1 {
		return errors.New("lockout.threshold must be at least 1")
	}
	if cfg.Lockout.Window <= 0 || cfg.Lockout.Cooldown <= 0 {
		return errors.New("lockout.window and lockout.cooldown must be positive")
	}
	if cfg.Access.AuditCapacity < 1 {
		return errors.New("access.audit_capacity must be at least 1")
	}
	if cfg.Access.BurstThreshold < 1 {
		return errors.New("access.burst_threshold must be at least 1")
	}
	return nil
}

func verifyHTTP(h *HTTPSection) error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("http.tls_cert_file and http.tls_key_file must be set together")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file: %w", err)
		}
	}
	for _, entry := range h.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("http.admin_allow_list: %w", err)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("http.admin_allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifyStorage(cfg *ServerConfig) error {
	switch cfg.Storage.Backend {
	case BackendCookie, BackendMemory:
	case BackendRedis:
		if len(cfg.Redis.Addrs) == 0 {
			return errors.New("redis.addrs is required when storage.backend is redis")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of cookie, memory, redis", cfg.Storage.Backend)
	}

	switch cfg.Storage.Principals {
	case PrincipalsMemory:
	case PrincipalsSQLite:
		if cfg.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required when storage.principals is sqlite")
		}
	default:
		return fmt.Errorf("storage.principals %q is not one of memory, sqlite", cfg.Storage.Principals)
	}
	return nil
}
