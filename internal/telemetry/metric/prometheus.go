package metric

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every authcore metric.
const Namespace = "authcore"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Credential metrics
	LoginAttempts *prometheus.CounterVec // kind, outcome
	Lockouts      prometheus.Counter

	// Token metrics
	TokensIssued       *prometheus.CounterVec // type
	TokenVerifications *prometheus.CounterVec // result
	Refreshes          *prometheus.CounterVec // outcome

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCleared *prometheus.CounterVec // reason

	// Access metrics
	AccessDecisions *prometheus.CounterVec // kind, decision
	AccessBursts    *prometheus.CounterVec // kind

	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // method, route, status
	RequestDuration *prometheus.HistogramVec // method, route
}

// NewRegistry creates a registry with every authcore metric registered,
// plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credential",
			Name:      "login_attempts_total",
			Help:      "Login attempts by principal kind and outcome",
		}, []string{"kind", "outcome"}),

		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credential",
			Name:      "lockouts_total",
			Help:      "Administrator accounts locked after repeated failures",
		}),

		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "token",
			Name:      "issued_total",
			Help:      "Tokens minted by type",
		}, []string{"type"}),

		TokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "token",
			Name:      "verifications_total",
			Help:      "Access token verifications by result",
		}, []string{"result"}),

		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "token",
			Name:      "refreshes_total",
			Help:      "Access token refreshes by outcome",
		}, []string{"outcome"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held by session managers in this process",
		}),

		SessionsCleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "cleared_total",
			Help:      "Sessions cleared by reason",
		}, []string{"reason"}),

		AccessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Route and resource access decisions",
		}, []string{"kind", "decision"}),

		AccessBursts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "access",
			Name:      "bursts_total",
			Help:      "Denials that crossed the burst threshold",
		}, []string{"kind"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.LoginAttempts,
		r.Lockouts,
		r.TokensIssued,
		r.TokenVerifications,
		r.Refreshes,
		r.SessionsActive,
		r.SessionsCleared,
		r.AccessDecisions,
		r.AccessBursts,
		r.RequestsTotal,
		r.RequestDuration,
	)

	return r
}

// Register adds extra collectors (e.g., storage gauges). Already-registered
// collectors are ignored.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	if r == nil {
		return nil
	}
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ============================================================================
// Recording helpers (nil-safe)
// ============================================================================

// ObserveLogin counts a login attempt.
func (r *Registry) ObserveLogin(kind, outcome string) {
	if r == nil {
		return
	}
	r.LoginAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveLockout counts an administrator lockout.
func (r *Registry) ObserveLockout() {
	if r == nil {
		return
	}
	r.Lockouts.Inc()
}

// ObserveIssued counts a minted token of the given type (access or refresh).
func (r *Registry) ObserveIssued(tokenType string) {
	if r == nil {
		return
	}
	r.TokensIssued.WithLabelValues(tokenType).Inc()
}

// ObserveVerification counts an access token verification result.
func (r *Registry) ObserveVerification(result string) {
	if r == nil {
		return
	}
	r.TokenVerifications.WithLabelValues(result).Inc()
}

// ObserveRefresh counts a refresh outcome.
func (r *Registry) ObserveRefresh(outcome string) {
	if r == nil {
		return
	}
	r.Refreshes.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsActive.Inc()
}

// SessionClosed decrements the active session gauge and counts the reason.
func (r *Registry) SessionClosed(reason string) {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
	r.SessionsCleared.WithLabelValues(reason).Inc()
}

// ObserveAccess counts an access decision.
func (r *Registry) ObserveAccess(kind string, allowed bool) {
	if r == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	r.AccessDecisions.WithLabelValues(kind, decision).Inc()
}

// ObserveBurst counts a denial burst.
func (r *Registry) ObserveBurst(kind string) {
	if r == nil {
		return
	}
	r.AccessBursts.WithLabelValues(kind).Inc()
}

// ObserveRequest records an HTTP request.
func (r *Registry) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
