package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler wires the endpoints. Its login and admin middlewares and its
	// metrics handler are filled in by NewRouter.
	Handler handler.Config

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics records request metrics and serves /metrics. May be nil.
	Metrics *metric.Registry

	// CORSOrigins is the list of origins allowed to send credentials.
	CORSOrigins []string

	// LoginRatePerMinute and LoginBurst throttle the login endpoints per
	// client IP. Zero disables the throttle.
	LoginRatePerMinute int
	LoginBurst         int

	// TrustProxy takes the client IP from forwarding headers.
	TrustProxy bool

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		LoginRatePerMinute: 30,
		LoginBurst:         10,
		EnableAudit:        true,
	}
}

// NewRouter creates the handler and wraps it in the global middleware chain:
// Recover -> RequestID -> Metrics -> Audit -> CORS -> routes.
func NewRouter(cfg *RouterConfig) (http.Handler, *handler.Handler) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	hc := cfg.Handler
	if hc.Deps.Logger == nil {
		hc.Deps.Logger = log
	}
	if cfg.LoginRatePerMinute > 0 {
		limiters := service.NewRateLimiterRegistry(cfg.LoginRatePerMinute, cfg.LoginBurst)
		hc.LoginMiddleware = LoginRateLimit(limiters, cfg.TrustProxy)
	}
	if len(cfg.AdminAllowList) > 0 {
		hc.AdminMiddleware = NetworkACL(&NetworkACLConfig{
			AllowList:  cfg.AdminAllowList,
			TrustProxy: cfg.TrustProxy,
			Logger:     log,
		})
	}
	if cfg.Metrics != nil {
		hc.Metrics = cfg.Metrics.Handler()
	}

	h := handler.New(hc)

	middlewares := []Middleware{
		Recover(log),
		RequestID(log),
		Metrics(cfg.Metrics),
	}
	if cfg.EnableAudit {
		middlewares = append(middlewares, Audit(cfg.TrustProxy))
	}
	if len(cfg.CORSOrigins) > 0 {
		middlewares = append(middlewares, CORS(cfg.CORSOrigins))
	}

	return Chain(h, middlewares...), h
}
