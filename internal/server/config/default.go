package config

import (
	"time"

	"github.com/yndnr/authcore-go/internal/storage/redisstore"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/tracer"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultLoginRatePerMinute = 30
	DefaultLoginBurst         = 10

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "authcore"

	DefaultRenewalInterval  = 60 * time.Second
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultWarningLead      = 2 * time.Minute
	DefaultBackoffBase      = 250 * time.Millisecond
	DefaultBackoffMax       = 10 * time.Second

	DefaultLockoutThreshold = 3
	DefaultLockoutWindow    = 15 * time.Minute
	DefaultLockoutCooldown  = 15 * time.Minute

	DefaultAuditCapacity  = 1000
	DefaultBurstThreshold = 3
	DefaultBurstWindow    = 5 * time.Minute

	DefaultSQLitePath = "/var/lib/authcore-server/principals.db"
)

// Default returns the default server configuration. Secrets are empty and
// must be supplied.
func Default() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPSection{
			Addr:               DefaultHTTPAddr,
			ReadTimeout:        DefaultReadTimeout,
			WriteTimeout:       DefaultWriteTimeout,
			ShutdownTimeout:    DefaultShutdownTimeout,
			LoginRatePerMinute: DefaultLoginRatePerMinute,
			LoginBurst:         DefaultLoginBurst,
		},
		Tokens: TokensSection{
			AccessTTL:  DefaultAccessTTL,
			RefreshTTL: DefaultRefreshTTL,
			Issuer:     DefaultIssuer,
		},
		Session: SessionSection{
			RenewalInterval:  DefaultRenewalInterval,
			RefreshThreshold: DefaultRefreshThreshold,
			WarningLead:      DefaultWarningLead,
			BackoffBase:      DefaultBackoffBase,
			BackoffMax:       DefaultBackoffMax,
		},
		Lockout: LockoutSection{
			Threshold: DefaultLockoutThreshold,
			Window:    DefaultLockoutWindow,
			Cooldown:  DefaultLockoutCooldown,
		},
		Access: AccessSection{
			AuditCapacity:  DefaultAuditCapacity,
			BurstThreshold: DefaultBurstThreshold,
			BurstWindow:    DefaultBurstWindow,
		},
		Cookies: CookiesSection{
			Secure: true,
		},
		Storage: StorageSection{
			Backend:    BackendCookie,
			Principals: PrincipalsMemory,
			SQLitePath: DefaultSQLitePath,
		},
		Redis: redisstore.Config{
			KeyPrefix: redisstore.DefaultKeyPrefix,
		},
		Log:       logger.DefaultConfig(),
		Telemetry: tracer.Config{ServiceName: "authcore-server", SampleRatio: 1},
	}
}
