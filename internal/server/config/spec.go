package config

import (
	"time"

	"github.com/yndnr/authcore-go/internal/storage/redisstore"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/tracer"
)

// ServerConfig is the root configuration for authcore-server.
type ServerConfig struct {
	HTTP      HTTPSection       `koanf:"http"`
	Tokens    TokensSection     `koanf:"tokens"`
	Session   SessionSection    `koanf:"session"`
	Lockout   LockoutSection    `koanf:"lockout"`
	Access    AccessSection     `koanf:"access"`
	Cookies   CookiesSection    `koanf:"cookies"`
	Storage   StorageSection    `koanf:"storage"`
	Redis     redisstore.Config `koanf:"redis"`
	Log       logger.Config     `koanf:"log"`
	Telemetry tracer.Config     `koanf:"telemetry"`
	Accounts  AccountsSection   `koanf:"accounts"`
}

// HTTPSection configures the HTTP listener.
type HTTPSection struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists origins allowed to call the API with credentials.
	CORSOrigins []string `koanf:"cors_origins"`

	// LoginRatePerMinute and LoginBurst throttle login endpoints per client IP.
	LoginRatePerMinute int `koanf:"login_rate_per_minute"`
	LoginBurst         int `koanf:"login_burst"`

	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool `koanf:"trust_proxy"`

	// AdminAllowList restricts /admin endpoints to these IPs or CIDRs.
	// Empty means no network restriction.
	AdminAllowList []string `koanf:"admin_allow_list"`
}

// TokensSection configures the token issuer.
type TokensSection struct {
	AccessSecret        string        `koanf:"access_secret"`
	RefreshSecret       string        `koanf:"refresh_secret"`
	AccessTTL           time.Duration `koanf:"access_ttl"`
	RefreshTTL          time.Duration `koanf:"refresh_ttl"`
	Issuer              string        `koanf:"issuer"`
	RotateRefreshTokens bool          `koanf:"rotate_refresh_tokens"`

	// RefreshGrace is how long a completed refresh answers requests that
	// present the same refresh token. Zero selects the service default;
	// negative disables replay answers.
	RefreshGrace time.Duration `koanf:"refresh_grace"`
}

// SessionSection configures session renewal and expiry warnings.
type SessionSection struct {
	RenewalInterval  time.Duration `koanf:"renewal_interval"`
	RefreshThreshold time.Duration `koanf:"refresh_threshold"`
	WarningLead      time.Duration `koanf:"warning_lead"`
	BackoffBase      time.Duration `koanf:"backoff_base"`
	BackoffMax       time.Duration `koanf:"backoff_max"`
}

// LockoutSection configures administrator lockout.
type LockoutSection struct {
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
	Cooldown  time.Duration `koanf:"cooldown"`
}

// AccessSection configures the access controller.
type AccessSection struct {
	AuditCapacity  int           `koanf:"audit_capacity"`
	BurstThreshold int           `koanf:"burst_threshold"`
	BurstWindow    time.Duration `koanf:"burst_window"`

	// PublicRoutes replaces the default public allowlist when set.
	PublicRoutes []string `koanf:"public_routes"`
}

// CookiesSection configures session cookie attributes.
type CookiesSection struct {
	Secure bool   `koanf:"secure"`
	Domain string `koanf:"domain"`
}

// Storage backends.
const (
	BackendCookie = "cookie"
	BackendMemory = "memory"
	BackendRedis  = "redis"

	PrincipalsMemory = "memory"
	PrincipalsSQLite = "sqlite"
)

// StorageSection selects where session entries and principals live.
type StorageSection struct {
	// Backend is cookie (entries live in the browser), memory or redis
	// (entries live server-side behind an opaque session cookie).
	Backend string `koanf:"backend"`

	// Principals is memory (seeded from accounts) or sqlite.
	Principals string `koanf:"principals"`
	SQLitePath string `koanf:"sqlite_path"`
}

// AccountsSection seeds principals. Passwords are argon2id hashes.
type AccountsSection struct {
	Buyers         []BuyerSeed         `koanf:"buyers"`
	Merchants      []MerchantSeed      `koanf:"merchants"`
	Administrators []AdministratorSeed `koanf:"administrators"`
}

// BuyerSeed is a configured buyer account.
type BuyerSeed struct {
	ID           string `koanf:"id"`
	Email        string `koanf:"email"`
	Name         string `koanf:"name"`
	PasswordHash string `koanf:"password_hash"`
	Disabled     bool   `koanf:"disabled"`
}

// MerchantSeed is a configured merchant account.
type MerchantSeed struct {
	ID           string `koanf:"id"`
	StoreName    string `koanf:"store_name"`
	CompanyName  string `koanf:"company_name"`
	Email        string `koanf:"email"`
	PasswordHash string `koanf:"password_hash"`
	Disabled     bool   `koanf:"disabled"`
}

// AdministratorSeed is a configured administrator account.
type AdministratorSeed struct {
	ID           string `koanf:"id"`
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
	Disabled     bool   `koanf:"disabled"`
}
