package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	sellerPattern   = regexp.MustCompile(`^[\p{L}\p{N} &.,'\-]{2,100}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._\-]{3,64}$`)
)

// TokenMinter issues token pairs for authenticated principals.
type TokenMinter interface {
	Issue(principal domain.Principal) (*domain.TokenPair, error)
}

// AuthResult is the outcome of a login attempt.
type AuthResult struct {
	Success   bool
	Principal domain.Principal
	Tokens    *domain.TokenPair
	Error     *domain.AuthError
}

// Err returns Error as an error, or nil on success.
func (r *AuthResult) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// CredentialConfig holds configuration for CredentialValidator.
type CredentialConfig struct {
	// Lockout applies to administrator logins.
	Lockout LockoutConfig
}

// CredentialValidator runs the buyer, merchant and administrator login flows.
type CredentialValidator struct {
	repo       PrincipalRepository
	minter     TokenMinter
	comparator PasswordComparator
	lockout    *LockoutTracker
	deps       Deps
}

// NewCredentialValidator creates a CredentialValidator. A nil comparator
// selects Argon2Comparator.
func NewCredentialValidator(repo PrincipalRepository, minter TokenMinter, comparator PasswordComparator, cfg *CredentialConfig, deps Deps) *CredentialValidator {
	if cfg == nil {
		cfg = &CredentialConfig{Lockout: DefaultLockoutConfig()}
	}
	if comparator == nil {
		comparator = Argon2Comparator{}
	}
	deps = deps.withDefaults()

	return &CredentialValidator{
		repo:       repo,
		minter:     minter,
		comparator: comparator,
		lockout:    NewLockoutTracker(cfg.Lockout, deps.Clock),
		deps:       deps,
	}
}

// Lockout returns the administrator lockout tracker.
func (v *CredentialValidator) Lockout() *LockoutTracker {
	return v.lockout
}

// AuthenticateBuyer verifies a buyer's email and password.
func (v *CredentialValidator) AuthenticateBuyer(ctx context.Context, email, password string) *AuthResult {
	ctx, span := v.deps.Tracer.Start(ctx, "CredentialValidator.AuthenticateBuyer")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" || !emailPattern.MatchString(email) {
		return v.fail(span, domain.KindBuyer, domain.ErrMalformedCredentials)
	}

	acct, err := v.repo.FindBuyerByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return v.lookupFailed(span, domain.KindBuyer, password, err)
	}
	if !v.comparator.Compare(acct.PasswordHash, password) {
		return v.fail(span, domain.KindBuyer, domain.ErrInvalidCredentials)
	}
	if !acct.Active {
		return v.fail(span, domain.KindBuyer, domain.ErrAccountDisabled)
	}

	return v.succeed(ctx, span, &acct.Buyer)
}

// AuthenticateMerchant verifies a merchant by store and company name.
func (v *CredentialValidator) AuthenticateMerchant(ctx context.Context, storeName, companyName, password string) *AuthResult {
	ctx, span := v.deps.Tracer.Start(ctx, "CredentialValidator.AuthenticateMerchant")
	defer span.End()

	storeName = strings.TrimSpace(storeName)
	companyName = strings.TrimSpace(companyName)
	if password == "" || !sellerPattern.MatchString(storeName) || !sellerPattern.MatchString(companyName) {
		return v.fail(span, domain.KindMerchant, domain.ErrMalformedCredentials)
	}

	acct, err := v.repo.FindMerchantBySellerKey(ctx, domain.SellerKey(storeName, companyName))
	if err != nil {
		return v.lookupFailed(span, domain.KindMerchant, password, err)
	}
	if !v.comparator.Compare(acct.PasswordHash, password) {
		return v.fail(span, domain.KindMerchant, domain.ErrInvalidCredentials)
	}
	if !acct.Active {
		return v.fail(span, domain.KindMerchant, domain.ErrAccountDisabled)
	}

	return v.succeed(ctx, span, &acct.Merchant)
}

// AuthenticateAdministrator verifies an administrator, enforcing lockout.
// While locked every attempt fails, including ones with the right password.
func (v *CredentialValidator) AuthenticateAdministrator(ctx context.Context, username, password string) *AuthResult {
	ctx, span := v.deps.Tracer.Start(ctx, "CredentialValidator.AuthenticateAdministrator")
	defer span.End()

	username = strings.TrimSpace(username)
	if password == "" || !usernamePattern.MatchString(username) {
		return v.fail(span, domain.KindAdministrator, domain.ErrMalformedCredentials)
	}

	if locked, remaining := v.lockout.Check(username); locked {
		secs := int(math.Ceil(remaining.Seconds()))
		return v.fail(span, domain.KindAdministrator,
			domain.ErrAccountLocked.WithMessage(fmt.Sprintf("account locked, retry after %d seconds", secs)))
	}

	acct, err := v.repo.FindAdministrator(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			v.recordAdminFailure(username)
		}
		return v.lookupFailed(span, domain.KindAdministrator, password, err)
	}
	if !v.comparator.Compare(acct.PasswordHash, password) {
		v.recordAdminFailure(username)
		return v.fail(span, domain.KindAdministrator, domain.ErrInvalidCredentials)
	}
	if !acct.Active {
		return v.fail(span, domain.KindAdministrator, domain.ErrAccountDisabled)
	}

	v.lockout.Reset(username)
	return v.succeed(ctx, span, &acct.Administrator)
}

func (v *CredentialValidator) recordAdminFailure(username string) {
	if v.lockout.RecordFailure(username) {
		v.deps.Metrics.ObserveLockout()
		v.deps.Logger.Warn("administrator locked out",
			slog.String("username", username),
			slog.Int("failures", v.lockout.cfg.Threshold))
	}
}

// lookupFailed handles a repository error. Unknown principals burn a
// dummy comparison and read as invalid credentials.
func (v *CredentialValidator) lookupFailed(span trace.Span, kind domain.PrincipalKind, password string, err error) *AuthResult {
	if errors.Is(err, domain.ErrUserNotFound) {
		v.comparator.Compare(dummyHash(), password)
		return v.fail(span, kind, domain.ErrInvalidCredentials.WithCause(domain.ErrUserNotFound))
	}

	v.deps.Logger.Error("principal lookup failed",
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))
	if IsNetworkError(err) {
		return v.fail(span, kind, domain.ErrNetwork.WithCause(err))
	}
	return v.fail(span, kind, domain.ErrStorage.WithCause(err))
}

func (v *CredentialValidator) fail(span trace.Span, kind domain.PrincipalKind, err *domain.AuthError) *AuthResult {
	span.SetAttributes(
		attribute.String("principal.kind", string(kind)),
		attribute.String("auth.code", err.Code),
	)
	v.deps.Metrics.ObserveLogin(string(kind), string(err.Kind))
	v.deps.Logger.Info("login failed",
		slog.String("kind", string(kind)),
		slog.String("code", err.Code))
	return &AuthResult{Error: err}
}

func (v *CredentialValidator) succeed(ctx context.Context, span trace.Span, p domain.Principal) *AuthResult {
	if err := v.repo.RecordLogin(ctx, p.Kind(), p.SubjectID(), v.deps.Clock.Now()); err != nil {
		v.deps.Logger.Warn("record last login failed",
			slog.String("kind", string(p.Kind())),
			slog.String("sub", p.SubjectID()),
			slog.String("error", err.Error()))
	}

	tokens, err := v.minter.Issue(p)
	if err != nil {
		ae, ok := domain.AsAuthError(err)
		if !ok {
			ae = domain.ErrInternal.WithCause(err)
		}
		return v.fail(span, p.Kind(), ae)
	}

	span.SetAttributes(attribute.String("principal.kind", string(p.Kind())))
	v.deps.Metrics.ObserveLogin(string(p.Kind()), "success")
	v.deps.Logger.Info("login succeeded",
		slog.String("kind", string(p.Kind())),
		slog.String("sub", p.SubjectID()))

	return &AuthResult{Success: true, Principal: p, Tokens: tokens}
}
