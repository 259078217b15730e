package service

import (
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// AccessConfig holds configuration for AccessController.
type AccessConfig struct {
	// Policy gates non-public routes (default: domain.DefaultRoutePolicy).
	Policy domain.RoutePolicy

	// PublicRoutes are always allowed (default: domain.DefaultPublicRoutes).
	// Entries may end in "/*".
	PublicRoutes []string

	// Permissions is the resource-action matrix (default: domain.DefaultPermissionMatrix).
	Permissions domain.PermissionMatrix

	// AuditCapacity bounds the denial log (default: 1000).
	AuditCapacity int

	// BurstThreshold is the denial count per kind that a burst must exceed (default: 3).
	BurstThreshold int

	// BurstWindow is the period bursts and recent stats are counted over (default: 5m).
	BurstWindow time.Duration
}

// DefaultAccessConfig returns default configuration.
func DefaultAccessConfig() *AccessConfig {
	return &AccessConfig{
		Policy:         domain.DefaultRoutePolicy,
		PublicRoutes:   domain.DefaultPublicRoutes,
		Permissions:    domain.DefaultPermissionMatrix,
		AuditCapacity:  DefaultAuditCapacity,
		BurstThreshold: 3,
		BurstWindow:    5 * time.Minute,
	}
}

// AccessRequest asks whether a principal kind may open a path.
// An empty Kind means the request is unauthenticated.
type AccessRequest struct {
	Path      string
	Kind      domain.PrincipalKind
	SessionID string
}

// Decision is the outcome of a route check.
type Decision struct {
	Allowed bool                `json:"allowed"`
	Public  bool                `json:"public,omitempty"`
	Reason  domain.DenialReason `json:"reason,omitempty"`
	// Rule is the matched pattern, if any.
	Rule  string `json:"rule,omitempty"`
	Burst bool   `json:"burst,omitempty"`
}

// DenialSignal reports a recorded denial.
type DenialSignal struct {
	Event domain.AccessEvent
	// RecentCount is the number of denials for the event's kind inside the
	// burst window, including this one.
	RecentCount int
	Burst       bool
}

// PathCount is a path with its denial count.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// AccessStats summarizes the denial log.
type AccessStats struct {
	Total             int            `json:"total"`
	ByKind            map[string]int `json:"by_kind"`
	RecentWindowCount int            `json:"recent_window_count"`
	TopPaths          []PathCount    `json:"top_paths"`
}

const topPathsLimit = 5

// AccessController answers route and resource authorization questions and
// keeps a bounded log of denials.
type AccessController struct {
	cfg   AccessConfig
	log   *AccessLog
	burst BurstHandler
	deps  Deps
}

// NewAccessController creates an AccessController. burst may be nil.
func NewAccessController(cfg *AccessConfig, burst BurstHandler, deps Deps) *AccessController {
	def := DefaultAccessConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Policy == nil {
		c.Policy = def.Policy
	}
	if c.PublicRoutes == nil {
		c.PublicRoutes = def.PublicRoutes
	}
	if c.Permissions == nil {
		c.Permissions = def.Permissions
	}
	if c.AuditCapacity <= 0 {
		c.AuditCapacity = def.AuditCapacity
	}
	if c.BurstThreshold <= 0 {
		c.BurstThreshold = def.BurstThreshold
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = def.BurstWindow
	}

	return &AccessController{
		cfg:   c,
		log:   NewAccessLog(c.AuditCapacity),
		burst: burst,
		deps:  deps.withDefaults(),
	}
}

// IsPublic reports whether path is on the public allowlist.
func (a *AccessController) IsPublic(path string) bool {
	path = domain.NormalizePath(path)
	for _, p := range a.cfg.PublicRoutes {
		if domain.MatchPattern(p, path) {
			return true
		}
	}
	return false
}

// Authorize reports whether kind may open path. Denials are recorded.
func (a *AccessController) Authorize(path string, kind domain.PrincipalKind) bool {
	return a.Check(AccessRequest{Path: path, Kind: kind}).Allowed
}

// Check evaluates a route request. Denials are recorded.
func (a *AccessController) Check(req AccessRequest) Decision {
	path := domain.NormalizePath(req.Path)

	if a.IsPublic(path) {
		a.deps.Metrics.ObserveAccess(req.Kind.Label(), true)
		return Decision{Allowed: true, Public: true}
	}

	rule, ok := a.cfg.Policy.Lookup(path)
	var reason domain.DenialReason
	switch {
	case !ok:
		reason = domain.ReasonNoPolicy
	case rule.Allows(req.Kind):
		a.deps.Metrics.ObserveAccess(req.Kind.Label(), true)
		return Decision{Allowed: true, Rule: rule.Pattern}
	case req.Kind == domain.KindAnonymous:
		reason = domain.ReasonUnauthenticated
	default:
		reason = domain.ReasonKindNotAllowed
	}

	a.deps.Metrics.ObserveAccess(req.Kind.Label(), false)
	sig := a.RecordDenial(path, req.Kind, reason, req.SessionID)
	return Decision{Allowed: false, Reason: reason, Rule: rule.Pattern, Burst: sig.Burst}
}

// AuthorizeResourceAction reports whether kind may perform action on resource.
func (a *AccessController) AuthorizeResourceAction(kind domain.PrincipalKind, resource domain.Resource, action domain.Action) bool {
	allowed := a.cfg.Permissions.Allows(kind, resource, action)
	a.deps.Metrics.ObserveAccess(kind.Label(), allowed)
	return allowed
}

// Permissions returns the "resource:action" grants of kind.
func (a *AccessController) Permissions(kind domain.PrincipalKind) []string {
	return a.cfg.Permissions.Permissions(kind)
}

// RecordDenial appends a denial to the log and reports whether it pushed
// its kind over the burst threshold.
func (a *AccessController) RecordDenial(path string, kind domain.PrincipalKind, reason domain.DenialReason, sessionID string) DenialSignal {
	now := a.deps.Clock.Now()
	id, err := domain.NewID(domain.EventIDPrefix, now)
	if err != nil {
		id = domain.EventIDPrefix + "unknown"
	}

	ev := domain.AccessEvent{
		ID:            id,
		PrincipalKind: kind,
		Path:          path,
		Reason:        reason,
		Timestamp:     now.UnixMilli(),
		SessionID:     sessionID,
	}
	since := now.Add(-a.cfg.BurstWindow).UnixMilli()
	ev, count := a.log.appendCounting(ev, since, a.cfg.BurstThreshold)

	a.deps.Logger.Debug("access denied",
		slog.String("path", path),
		slog.String("kind", kind.Label()),
		slog.String("reason", string(reason)))

	if ev.Burst {
		a.deps.Metrics.ObserveBurst(kind.Label())
		a.deps.Logger.Warn("unauthorized access burst",
			slog.String("kind", kind.Label()),
			slog.Int("count", count),
			slog.Duration("window", a.cfg.BurstWindow),
			slog.String("path", path))
		if a.burst != nil {
			a.burst(ev, count)
		}
	}

	return DenialSignal{Event: ev, RecentCount: count, Burst: ev.Burst}
}

// AccessLog returns the denial log, oldest first.
func (a *AccessController) AccessLog() []domain.AccessEvent {
	return a.log.Events()
}

// Stats summarizes the denial log.
func (a *AccessController) Stats() AccessStats {
	events := a.log.Events()
	since := a.deps.Clock.Now().Add(-a.cfg.BurstWindow).UnixMilli()

	stats := AccessStats{
		Total:  len(events),
		ByKind: make(map[string]int),
	}
	paths := make(map[string]int)
	for _, e := range events {
		stats.ByKind[e.PrincipalKind.Label()]++
		paths[e.Path]++
		if e.Timestamp >= since {
			stats.RecentWindowCount++
		}
	}

	stats.TopPaths = make([]PathCount, 0, len(paths))
	for p, n := range paths {
		stats.TopPaths = append(stats.TopPaths, PathCount{Path: p, Count: n})
	}
	sort.Slice(stats.TopPaths, func(i, j int) bool {
		if stats.TopPaths[i].Count != stats.TopPaths[j].Count {
			return stats.TopPaths[i].Count > stats.TopPaths[j].Count
		}
		return stats.TopPaths[i].Path < stats.TopPaths[j].Path
	})
	if len(stats.TopPaths) > topPathsLimit {
		stats.TopPaths = stats.TopPaths[:topPathsLimit]
	}
	return stats
}

// UnauthorizedAccessStats is an alias of Stats.
func (a *AccessController) UnauthorizedAccessStats() AccessStats {
	return a.Stats()
}
