package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/infra/clock"
)

// RecoveryAction tells a caller how to react to a failure.
type RecoveryAction string

const (
	// RecoveryRetryable means the operation may be retried with backoff.
	RecoveryRetryable RecoveryAction = "retryable"
	// RecoveryForceLogout means the session must be cleared.
	RecoveryForceLogout RecoveryAction = "forceLogout"
	// RecoveryWarnOnly means the user is told and nothing else changes.
	RecoveryWarnOnly RecoveryAction = "warnOnly"
	// RecoveryFatal means the failure is unexpected.
	RecoveryFatal RecoveryAction = "fatal"
)

// Classification is the taxonomy view of an error.
type Classification struct {
	Kind    domain.ErrorKind `json:"kind"`
	Action  RecoveryAction   `json:"action"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
}

// Retryable reports whether the failure may be retried.
func (c Classification) Retryable() bool {
	return c.Action == RecoveryRetryable
}

// ClassifierConfig holds configuration for ErrorClassifier.
type ClassifierConfig struct {
	// WarningLead is how long before expiry the expiring notice fires (default: 2m).
	WarningLead time.Duration

	// BackoffBase is the first retry delay (default: 250ms).
	BackoffBase time.Duration

	// BackoffMax caps the retry delay (default: 10s).
	BackoffMax time.Duration
}

// DefaultClassifierConfig returns default configuration.
func DefaultClassifierConfig() *ClassifierConfig {
	return &ClassifierConfig{
		WarningLead: 2 * time.Minute,
		BackoffBase: 250 * time.Millisecond,
		BackoffMax:  10 * time.Second,
	}
}

var recoveryByKind = map[domain.ErrorKind]RecoveryAction{
	domain.KindNetworkError:       RecoveryRetryable,
	domain.KindTokenInvalid:       RecoveryForceLogout,
	domain.KindTokenExpired:       RecoveryForceLogout,
	domain.KindAccountDisabled:    RecoveryForceLogout,
	domain.KindInvalidCredentials: RecoveryWarnOnly,
	domain.KindUserNotFound:       RecoveryWarnOnly,
	domain.KindAccountLocked:      RecoveryWarnOnly,
	domain.KindUnauthorizedAccess: RecoveryWarnOnly,
	domain.KindUnknownError:       RecoveryFatal,
}

var defaultCodeByKind = map[domain.ErrorKind]string{
	domain.KindInvalidCredentials: domain.ErrInvalidCredentials.Code,
	domain.KindUserNotFound:       domain.ErrUserNotFound.Code,
	domain.KindAccountDisabled:    domain.ErrAccountDisabled.Code,
	domain.KindAccountLocked:      domain.ErrAccountLocked.Code,
	domain.KindTokenExpired:       domain.ErrTokenExpired.Code,
	domain.KindTokenInvalid:       domain.ErrTokenInvalid.Code,
	domain.KindNetworkError:       domain.ErrNetwork.Code,
	domain.KindUnauthorizedAccess: domain.ErrUnauthorizedAccess.Code,
	domain.KindUnknownError:       domain.ErrInternal.Code,
}

var userMessages = map[domain.ErrorKind]string{
	domain.KindInvalidCredentials: "The sign-in details you entered are incorrect.",
	// Unknown principals read the same as wrong passwords.
	domain.KindUserNotFound:       "The sign-in details you entered are incorrect.",
	domain.KindAccountDisabled:    "This account has been disabled. Contact support for help.",
	domain.KindAccountLocked:      "Too many failed sign-in attempts. Please try again later.",
	domain.KindTokenExpired:       "Your session has expired. Please sign in again.",
	domain.KindTokenInvalid:       "Your session is no longer valid. Please sign in again.",
	domain.KindNetworkError:       "We could not reach the server. Retrying shortly.",
	domain.KindUnauthorizedAccess: "You do not have access to this page.",
	domain.KindUnknownError:       "Something went wrong. Please try again.",
}

// ExpiringMessage is the text of the "session expiring" notice.
const ExpiringMessage = "Your session is about to expire."

// ActionFor returns the recovery action for kind.
func ActionFor(kind domain.ErrorKind) RecoveryAction {
	if a, ok := recoveryByKind[kind]; ok {
		return a
	}
	return RecoveryFatal
}

// UserMessage returns a generic user-facing text for kind.
func UserMessage(kind domain.ErrorKind) string {
	if m, ok := userMessages[kind]; ok {
		return m
	}
	return userMessages[domain.KindUnknownError]
}

type armedWarning struct {
	timer     clock.Timer
	expiresAt time.Time
}

// ErrorClassifier maps failures onto the closed taxonomy and owns the
// per-session "expiring" notices.
type ErrorClassifier struct {
	cfg      ClassifierConfig
	notifier ExpiryNotifier
	deps     Deps

	mu    sync.Mutex
	armed map[string]*armedWarning
}

// NewErrorClassifier creates an ErrorClassifier. notifier may be nil.
func NewErrorClassifier(cfg *ClassifierConfig, notifier ExpiryNotifier, deps Deps) *ErrorClassifier {
	if cfg == nil {
		cfg = DefaultClassifierConfig()
	}
	c := *cfg
	def := DefaultClassifierConfig()
	if c.WarningLead <= 0 {
		c.WarningLead = def.WarningLead
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}

	return &ErrorClassifier{
		cfg:      c,
		notifier: notifier,
		deps:     deps.withDefaults(),
		armed:    make(map[string]*armedWarning),
	}
}

// Classify maps err onto the taxonomy. A nil error yields the zero value.
func (c *ErrorClassifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	kind := classifyKind(err)
	code := domain.GetErrorCode(err)
	if code == "" {
		code = defaultCodeByKind[kind]
	}
	return Classification{
		Kind:    kind,
		Action:  ActionFor(kind),
		Code:    code,
		Message: UserMessage(kind),
	}
}

func classifyKind(err error) domain.ErrorKind {
	if ae, ok := domain.AsAuthError(err); ok {
		return ae.Kind
	}
	if IsNetworkError(err) {
		return domain.KindNetworkError
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return domain.KindTokenExpired
	}
	if isJWTError(err) {
		return domain.KindTokenInvalid
	}
	return domain.KindUnknownError
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func isJWTError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenRequiredClaimMissing,
		jwt.ErrTokenInvalidIssuer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Backoff returns the retry delay for the given zero-based attempt.
func (c *ErrorClassifier) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := c.cfg.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.BackoffMax {
			return c.cfg.BackoffMax
		}
	}
	return d
}

// WarningLead returns how long before expiry the expiring notice fires.
func (c *ErrorClassifier) WarningLead() time.Duration {
	return c.cfg.WarningLead
}

// ArmExpiryWarning schedules the expiring notice for sessionID at
// expiresAt minus the warning lead. Re-arming replaces the pending notice.
func (c *ErrorClassifier) ArmExpiryWarning(sessionID string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.armed[sessionID]; ok {
		prev.timer.Stop()
		delete(c.armed, sessionID)
	}

	delay := expiresAt.Add(-c.cfg.WarningLead).Sub(c.deps.Clock.Now())
	if delay < 0 {
		delay = 0
	}

	w := &armedWarning{expiresAt: expiresAt}
	w.timer = c.deps.Clock.AfterFunc(delay, func() { c.fire(sessionID, w) })
	c.armed[sessionID] = w
}

// DisarmExpiryWarning cancels the pending notice for sessionID, if any.
func (c *ErrorClassifier) DisarmExpiryWarning(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.armed[sessionID]; ok {
		w.timer.Stop()
		delete(c.armed, sessionID)
	}
}

// Armed reports whether a notice is pending for sessionID.
func (c *ErrorClassifier) Armed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.armed[sessionID]
	return ok
}

func (c *ErrorClassifier) fire(sessionID string, w *armedWarning) {
	c.mu.Lock()
	if c.armed[sessionID] != w {
		// Disarmed or re-armed after the timer fired.
		c.mu.Unlock()
		return
	}
	delete(c.armed, sessionID)
	c.mu.Unlock()

	c.deps.Logger.Info("session expiring",
		slog.String("session_id", sessionID),
		slog.Time("expires_at", w.expiresAt))

	if c.notifier != nil {
		c.notifier(sessionID, w.expiresAt)
	}
}
