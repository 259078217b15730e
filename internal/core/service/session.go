package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/infra/clock"
)

// Session clear reasons, reported to the RevocationHook and in metrics.
const (
	ReasonLogout        = "logout"
	ReasonInvalidToken  = "invalid_token"
	ReasonRefreshFailed = "refresh_failed"
	ReasonReplaced      = "replaced"
)

// SessionConfig holds configuration for SessionManager.
type SessionConfig struct {
	// RenewalInterval is how often the renewal loop checks time to expiry.
	// Zero disables background renewal.
	RenewalInterval time.Duration

	// RefreshThreshold triggers a proactive refresh when less time than
	// this remains on the access token (default: 5m).
	RefreshThreshold time.Duration

	// SecureEntries sets the Secure attribute on persisted entries.
	SecureEntries bool
}

// DefaultSessionConfig returns default configuration.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		RenewalInterval:  60 * time.Second,
		RefreshThreshold: 5 * time.Minute,
	}
}

// storedSummary is the JSON form of the principal_summary entry.
type storedSummary struct {
	domain.PrincipalSummary
	SessionID        string `json:"session_id,omitempty"`
	CreatedAt        int64  `json:"created_at,omitempty"`
	RefreshExpiresAt int64  `json:"refresh_expires_at,omitempty"`
}

// SessionManager owns the session of one client context. It persists the
// session through a SecureStore, refreshes it before the access token
// expires and coalesces concurrent refreshes into one.
type SessionManager struct {
	authority  TokenAuthority
	store      SecureStore
	classifier *ErrorClassifier
	hook       RevocationHook
	cfg        SessionConfig
	deps       Deps

	mu      sync.Mutex
	session *domain.Session
	state   domain.SessionState
	// gen is bumped on every create and clear; stale refresh results and
	// timer callbacks compare against it.
	gen   uint64
	timer clock.Timer

	refreshGroup singleflight.Group
}

// NewSessionManager creates a SessionManager. classifier and hook may be nil.
func NewSessionManager(authority TokenAuthority, store SecureStore, classifier *ErrorClassifier, hook RevocationHook, cfg *SessionConfig, deps Deps) *SessionManager {
	if cfg == nil {
		cfg = DefaultSessionConfig()
	}
	c := *cfg
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultSessionConfig().RefreshThreshold
	}
	deps = deps.withDefaults()
	if classifier == nil {
		classifier = NewErrorClassifier(nil, nil, deps)
	}

	return &SessionManager{
		authority:  authority,
		store:      store,
		classifier: classifier,
		hook:       hook,
		cfg:        c,
		deps:       deps,
	}
}

// State returns the current lifecycle state.
func (m *SessionManager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the in-memory session.
func (m *SessionManager) Current() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.Session{}, false
	}
	return *m.session, true
}

// CreateSession starts a session for principal from a freshly issued pair.
// An existing session is replaced.
func (m *SessionManager) CreateSession(ctx context.Context, principal domain.Principal, pair *domain.TokenPair) (*domain.Session, error) {
	if principal == nil || pair == nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, domain.ErrTokenMissing
	}

	now := m.deps.Clock.Now()
	id, err := domain.NewID(domain.SessionIDPrefix, now)
	if err != nil {
		return nil, err
	}

	s := &domain.Session{
		ID:               id,
		Principal:        domain.Summarize(principal),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		CreatedAt:        now.Unix(),
	}

	m.mu.Lock()
	prev := m.session
	m.stopTimerLocked()
	m.gen++

	if err := m.persistLocked(ctx, s, now); err != nil {
		m.deleteEntriesLocked(ctx)
		m.session = nil
		m.state = domain.StateNoSession
		m.mu.Unlock()
		if prev != nil {
			m.afterClear(ctx, prev, ReasonReplaced)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}

	m.session = s
	m.state = domain.StateActive
	m.armRenewalLocked(m.gen)
	m.mu.Unlock()

	if prev != nil {
		m.afterClear(ctx, prev, ReasonReplaced)
	}
	m.classifier.ArmExpiryWarning(s.ID, s.ExpiresAtTime())
	m.deps.Metrics.SessionOpened()

	m.deps.Logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("kind", string(s.Principal.Kind)),
		slog.String("sub", s.Principal.ID),
		slog.Time("expires_at", s.ExpiresAtTime()))

	return s.Clone(), nil
}

func (m *SessionManager) persistLocked(ctx context.Context, s *domain.Session, now time.Time) error {
	if err := m.store.Set(ctx, domain.EntryAccessToken, s.AccessToken, m.entryAttrs(true, s.ExpiresAt, now)); err != nil {
		return err
	}
	if err := m.store.Set(ctx, domain.EntryRefreshToken, s.RefreshToken, m.entryAttrs(true, s.RefreshExpiresAt, now)); err != nil {
		return err
	}

	summary, err := json.Marshal(storedSummary{
		PrincipalSummary: s.Principal,
		SessionID:        s.ID,
		CreatedAt:        s.CreatedAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
	})
	if err != nil {
		return err
	}
	return m.store.Set(ctx, domain.EntryPrincipalSummary, string(summary), m.entryAttrs(false, s.RefreshExpiresAt, now))
}

// entryAttrs builds the attributes for an entry expiring at exp (Unix seconds).
func (m *SessionManager) entryAttrs(httpOnly bool, exp int64, now time.Time) EntryAttributes {
	maxAge := time.Unix(exp, 0).Sub(now)
	if maxAge < time.Second {
		maxAge = time.Second
	}
	return EntryAttributes{
		HTTPOnly: httpOnly,
		Secure:   m.cfg.SecureEntries,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   maxAge,
	}
}

// ValidateSession reports whether the client has a usable session. With no
// session in memory it restores one from the store. An expired access token
// triggers one refresh; an invalid one clears the session.
func (m *SessionManager) ValidateSession(ctx context.Context) bool {
	ctx, span := m.deps.Tracer.Start(ctx, "SessionManager.ValidateSession")
	defer span.End()

	m.mu.Lock()
	var s *domain.Session
	if m.session != nil {
		s = m.session.Clone()
	}
	m.mu.Unlock()

	restored := false
	if s == nil {
		var err error
		s, err = m.restore(ctx)
		if err != nil {
			m.deps.Logger.Warn("session restore failed", slog.String("error", err.Error()))
			m.ClearSessionWithReason(ctx, ReasonInvalidToken)
			return false
		}
		if s == nil {
			return false
		}
		restored = true
	}

	if s.AccessToken == "" {
		// The access entry outlived its MaxAge; only a refresh can help.
		if restored {
			m.install(s)
		}
		return m.RefreshSession(ctx)
	}

	res, err := m.authority.Verify(ctx, s.AccessToken)
	if err != nil {
		if m.classifier.Classify(err).Retryable() {
			// Keep a restored session current so the caller can retry.
			if restored {
				m.install(s)
			}
			m.deps.Logger.Warn("session verification unavailable", slog.String("error", err.Error()))
			return false
		}
		m.ClearSessionWithReason(ctx, ReasonInvalidToken)
		return false
	}

	switch {
	case res.Valid:
		if restored {
			s.ExpiresAt = res.Claims.ExpiresAt
			if s.Principal.ID == "" {
				s.Principal = res.Summary
			}
			m.install(s)
		}
		span.SetAttributes(attribute.Bool("session.valid", true))
		return true

	case res.Expired:
		if restored {
			s.ExpiresAt = res.Claims.ExpiresAt
			m.install(s)
		}
		return m.RefreshSession(ctx)

	default:
		span.SetAttributes(attribute.Bool("session.valid", false))
		m.deps.Logger.Info("invalid access token, clearing session",
			slog.String("code", domain.GetErrorCode(res.Err)))
		m.ClearSessionWithReason(ctx, ReasonInvalidToken)
		return false
	}
}

// Resume loads a persisted session into memory without verifying it, so that
// RefreshSession or ClearSession can act on it. It reports whether a session
// is now current.
func (m *SessionManager) Resume(ctx context.Context) (bool, error) {
	if _, ok := m.Current(); ok {
		return true, nil
	}
	s, err := m.restore(ctx)
	if err != nil || s == nil {
		return false, err
	}
	m.install(s)
	return true, nil
}

// restore rebuilds a session from the store. It returns nil without error
// when no refresh token is stored.
func (m *SessionManager) restore(ctx context.Context) (*domain.Session, error) {
	refresh, ok, err := m.store.Get(ctx, domain.EntryRefreshToken)
	if err != nil {
		return nil, err
	}
	if !ok || refresh == "" {
		return nil, nil
	}

	access, _, err := m.store.Get(ctx, domain.EntryAccessToken)
	if err != nil {
		return nil, err
	}

	var summary storedSummary
	if raw, ok, err := m.store.Get(ctx, domain.EntryPrincipalSummary); err != nil {
		return nil, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, errors.New("corrupt principal summary")
		}
	}

	now := m.deps.Clock.Now()
	id := summary.SessionID
	if !domain.IsValidSessionID(id) {
		if id, err = domain.NewID(domain.SessionIDPrefix, now); err != nil {
			return nil, err
		}
	}
	createdAt := summary.CreatedAt
	if createdAt == 0 {
		createdAt = now.Unix()
	}

	return &domain.Session{
		ID:               id,
		Principal:        summary.PrincipalSummary,
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        now.Unix(),
		RefreshExpiresAt: summary.RefreshExpiresAt,
		CreatedAt:        createdAt,
	}, nil
}

// install makes a restored session current unless another one won the race.
func (m *SessionManager) install(s *domain.Session) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return
	}
	m.session = s
	m.state = domain.StateActive
	m.armRenewalLocked(m.gen)
	m.mu.Unlock()

	if s.ExpiresAtTime().After(m.deps.Clock.Now()) {
		m.classifier.ArmExpiryWarning(s.ID, s.ExpiresAtTime())
	}
	m.deps.Logger.Debug("session restored",
		slog.String("session_id", s.ID),
		slog.String("kind", string(s.Principal.Kind)))
}

// RefreshSession mints a new access token. Concurrent calls share one
// refresh. Only a failure whose recovery is a forced logout clears the
// session; network and unexpected failures keep it.
func (m *SessionManager) RefreshSession(ctx context.Context) bool {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false
	}
	gen := m.gen
	refreshToken := m.session.RefreshToken
	m.state = domain.StateRefreshing
	m.mu.Unlock()

	// Keyed by generation so a call for a replaced session never joins a
	// refresh of the previous one.
	v, _, _ := m.refreshGroup.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return m.doRefresh(ctx, gen, refreshToken), nil
	})
	return v.(bool)
}

func (m *SessionManager) doRefresh(ctx context.Context, gen uint64, refreshToken string) bool {
	ctx, span := m.deps.Tracer.Start(ctx, "SessionManager.RefreshSession")
	defer span.End()

	res, err := m.authority.Refresh(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")

		cls := m.classifier.Classify(err)
		if cls.Action != RecoveryForceLogout {
			m.mu.Lock()
			if m.gen == gen && m.session != nil {
				m.state = domain.StateActive
			}
			m.mu.Unlock()
			m.deps.Logger.Warn("session refresh deferred",
				slog.String("code", cls.Code),
				slog.String("action", string(cls.Action)),
				slog.String("error", err.Error()))
			return false
		}

		m.deps.Logger.Info("session refresh failed, clearing session",
			slog.String("code", cls.Code),
			slog.String("kind", string(cls.Kind)))
		m.clear(ctx, ReasonRefreshFailed, &gen)
		return false
	}

	now := m.deps.Clock.Now()

	m.mu.Lock()
	if m.gen != gen || m.session == nil {
		// Cleared or replaced while the refresh was in flight.
		m.mu.Unlock()
		return false
	}

	if err := m.store.Set(ctx, domain.EntryAccessToken, res.AccessToken, m.entryAttrs(true, res.ExpiresAt, now)); err != nil {
		m.deps.Logger.Warn("persist refreshed access token failed", slog.String("error", err.Error()))
	}
	if res.RefreshToken != "" {
		if err := m.store.Set(ctx, domain.EntryRefreshToken, res.RefreshToken, m.entryAttrs(true, res.RefreshExpiresAt, now)); err != nil {
			m.deps.Logger.Warn("persist rotated refresh token failed", slog.String("error", err.Error()))
		}
	}

	s := m.session
	s.AccessToken = res.AccessToken
	s.ExpiresAt = res.ExpiresAt
	if res.RefreshToken != "" {
		s.RefreshToken = res.RefreshToken
		s.RefreshExpiresAt = res.RefreshExpiresAt
	}
	if res.Principal.ID != "" {
		s.Principal = res.Principal
	}
	m.state = domain.StateActive
	id, exp := s.ID, s.ExpiresAtTime()
	m.mu.Unlock()

	m.classifier.ArmExpiryWarning(id, exp)
	m.deps.Logger.Debug("session refreshed",
		slog.String("session_id", id),
		slog.Time("expires_at", exp))
	return true
}

// ClearSession ends the session and removes every persisted entry.
func (m *SessionManager) ClearSession(ctx context.Context) {
	m.ClearSessionWithReason(ctx, ReasonLogout)
}

// ClearSessionWithReason is ClearSession with an explicit reason for the
// revocation hook and metrics.
func (m *SessionManager) ClearSessionWithReason(ctx context.Context, reason string) {
	m.clear(ctx, reason, nil)
}

// clear ends the session. With onlyGen set, it does nothing if the session
// generation has moved on.
func (m *SessionManager) clear(ctx context.Context, reason string, onlyGen *uint64) {
	m.mu.Lock()
	if onlyGen != nil && *onlyGen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.gen++
	m.deleteEntriesLocked(ctx)
	prev := m.session
	m.session = nil
	m.state = domain.StateNoSession
	m.mu.Unlock()

	if prev != nil {
		m.afterClear(ctx, prev, reason)
	}
}

// Stop halts background renewal and the expiry notice. The session and its
// persisted entries are left in place.
func (m *SessionManager) Stop() {
	m.mu.Lock()
	m.stopTimerLocked()
	id := ""
	if m.session != nil {
		id = m.session.ID
	}
	m.mu.Unlock()

	if id != "" {
		m.classifier.DisarmExpiryWarning(id)
	}
}

func (m *SessionManager) deleteEntriesLocked(ctx context.Context) {
	for _, name := range domain.SessionEntries {
		if err := m.store.Delete(ctx, name); err != nil {
			m.deps.Logger.Warn("delete session entry failed",
				slog.String("entry", name),
				slog.String("error", err.Error()))
		}
	}
}

func (m *SessionManager) afterClear(ctx context.Context, prev *domain.Session, reason string) {
	m.classifier.DisarmExpiryWarning(prev.ID)
	m.deps.Metrics.SessionClosed(reason)

	m.deps.Logger.Info("session cleared",
		slog.String("session_id", prev.ID),
		slog.String("reason", reason))

	if m.hook == nil {
		return
	}
	if err := m.hook.SessionRevoked(ctx, *prev, reason); err != nil {
		m.deps.Logger.Warn("revocation hook failed",
			slog.String("session_id", prev.ID),
			slog.String("error", err.Error()))
	}
}

func (m *SessionManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *SessionManager) armRenewalLocked(gen uint64) {
	if m.cfg.RenewalInterval <= 0 {
		return
	}
	m.stopTimerLocked()
	m.timer = m.deps.Clock.AfterFunc(m.cfg.RenewalInterval, func() { m.renewalTick(gen) })
}

func (m *SessionManager) renewalTick(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.session == nil {
		m.mu.Unlock()
		return
	}
	remaining := m.session.TimeToExpiry(m.deps.Clock.Now())
	m.timer = m.deps.Clock.AfterFunc(m.cfg.RenewalInterval, func() { m.renewalTick(gen) })
	m.mu.Unlock()

	if remaining < m.cfg.RefreshThreshold {
		m.deps.Logger.Debug("proactive session refresh", slog.Duration("remaining", remaining))
		m.RefreshSession(context.Background())
	}
}
