package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 32

// TokenIssuerConfig holds configuration for TokenIssuer.
type TokenIssuerConfig struct {
	// AccessSecret signs access tokens.
	AccessSecret []byte

	// RefreshSecret signs refresh tokens. It must differ from AccessSecret.
	RefreshSecret []byte

	// AccessTTL is the access token lifetime (default: 15m).
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime (default: 7d).
	RefreshTTL time.Duration

	// Issuer is written to the iss claim and checked on verification when set.
	Issuer string

	// RotateRefreshTokens issues a new refresh token on every refresh and
	// denylists the old one until it expires.
	RotateRefreshTokens bool

	// Permissions is the grant table embedded in access tokens
	// (default: domain.DefaultPermissionMatrix).
	Permissions domain.PermissionMatrix
}

// VerifyResult is the outcome of verifying an access token.
type VerifyResult struct {
	Valid   bool
	Expired bool
	Claims  *domain.TokenClaims
	Summary domain.PrincipalSummary
	// Err is the typed failure when Valid is false.
	Err error
}

// RefreshResult carries a newly minted access token.
type RefreshResult struct {
	AccessToken string                  `json:"access_token"`
	ExpiresAt   int64                   `json:"expires_at"`
	Principal   domain.PrincipalSummary `json:"principal"`

	// Set only when refresh tokens are rotated.
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresAt int64  `json:"refresh_expires_at,omitempty"`
}

// tokenClaims is the wire form of both token kinds.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role        domain.PrincipalKind `json:"role"`
	Permissions []string             `json:"permissions,omitempty"`
	Type        domain.TokenPurpose  `json:"type,omitempty"`
}

func (c *tokenClaims) toDomain() *domain.TokenClaims {
	out := &domain.TokenClaims{
		SubjectID:   c.Subject,
		Kind:        c.Role,
		Permissions: c.Permissions,
		Purpose:     c.Type,
		TokenID:     c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Unix()
	}
	return out
}

// TokenIssuer signs and verifies access and refresh tokens with independent
// HMAC-SHA256 secrets.
type TokenIssuer struct {
	cfg      TokenIssuerConfig
	resolver PrincipalResolver
	deps     Deps

	// revoked maps rotated-out refresh token IDs to their expiry.
	revoked *cmap.Map[string, time.Time]
}

// NewTokenIssuer creates a TokenIssuer. resolver may be nil, in which case
// refresh trusts the identity carried by the refresh token.
func NewTokenIssuer(cfg TokenIssuerConfig, resolver PrincipalResolver, deps Deps) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", MinSecretLength)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = domain.DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = domain.DefaultRefreshTTL
	}
	if cfg.Permissions == nil {
		cfg.Permissions = domain.DefaultPermissionMatrix
	}

	return &TokenIssuer{
		cfg:      cfg,
		resolver: resolver,
		deps:     deps.withDefaults(),
		revoked:  cmap.New[string, time.Time](),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.cfg.RefreshTTL }

// Issue mints an access and refresh token pair for principal.
func (ti *TokenIssuer) Issue(principal domain.Principal) (*domain.TokenPair, error) {
	if principal == nil || !principal.Kind().IsValid() || principal.SubjectID() == "" {
		return nil, domain.ErrInternal.WithDetails("cannot issue tokens for an empty principal")
	}

	now := ti.deps.Clock.Now()
	access, accessExp, err := ti.signAccess(principal.SubjectID(), principal.Kind(), now)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := ti.signRefresh(principal.SubjectID(), principal.Kind(), now)
	if err != nil {
		return nil, err
	}

	ti.deps.Metrics.ObserveIssued("access")
	ti.deps.Metrics.ObserveIssued("refresh")

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp.Unix(),
		RefreshExpiresAt: refreshExp.Unix(),
	}, nil
}

func (ti *TokenIssuer) signAccess(sub string, kind domain.PrincipalKind, now time.Time) (string, time.Time, error) {
	exp := now.Add(ti.cfg.AccessTTL)
	claims := tokenClaims{
		RegisteredClaims: ti.registered(sub, now, exp),
		Role:             kind,
		Permissions:      ti.cfg.Permissions.Permissions(kind),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, domain.ErrInternal.WithDetails("signing access token").WithCause(err)
	}
	return signed, exp, nil
}

func (ti *TokenIssuer) signRefresh(sub string, kind domain.PrincipalKind, now time.Time) (string, time.Time, error) {
	exp := now.Add(ti.cfg.RefreshTTL)
	claims := tokenClaims{
		RegisteredClaims: ti.registered(sub, now, exp),
		Role:             kind,
		Type:             domain.PurposeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, domain.ErrInternal.WithDetails("signing refresh token").WithCause(err)
	}
	return signed, exp, nil
}

func (ti *TokenIssuer) registered(sub string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    ti.cfg.Issuer,
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// parse verifies the signature first and the time claims second, so an
// expired result always carries authentic claims.
func (ti *TokenIssuer) parse(token string, secret []byte) (*tokenClaims, error) {
	if token == "" {
		return nil, domain.ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.deps.Clock.Now),
		jwt.WithExpirationRequired(),
	}
	if ti.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.cfg.Issuer))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, domain.ErrTokenExpired.WithCause(err)
		}
		return nil, domain.ErrTokenInvalid.WithCause(err)
	}

	if claims.Subject == "" {
		return nil, domain.ErrTokenInvalid.WithDetails("missing subject")
	}
	if !claims.Role.IsValid() {
		return nil, domain.ErrTokenInvalid.WithDetails("unknown role")
	}
	return claims, nil
}

// VerifyAccess verifies an access token against the injected clock.
// A refresh token is always invalid here.
func (ti *TokenIssuer) VerifyAccess(token string) *VerifyResult {
	claims, err := ti.parse(token, ti.cfg.AccessSecret)
	if err == nil && claims.Type != domain.PurposeAccess {
		claims, err = nil, domain.ErrTokenPurpose
	}

	switch {
	case err == nil:
		ti.deps.Metrics.ObserveVerification("valid")
		dc := claims.toDomain()
		return &VerifyResult{Valid: true, Claims: dc, Summary: dc.Summary()}

	case domain.IsKind(err, domain.KindTokenExpired):
		if claims.Type != domain.PurposeAccess {
			ti.deps.Metrics.ObserveVerification("invalid")
			return &VerifyResult{Err: domain.ErrTokenPurpose}
		}
		ti.deps.Metrics.ObserveVerification("expired")
		dc := claims.toDomain()
		return &VerifyResult{Expired: true, Claims: dc, Summary: dc.Summary(), Err: err}

	default:
		ti.deps.Metrics.ObserveVerification("invalid")
		return &VerifyResult{Err: err}
	}
}

// VerifyRefresh verifies a refresh token and returns its claims.
func (ti *TokenIssuer) VerifyRefresh(token string) (*domain.TokenClaims, error) {
	claims, err := ti.parse(token, ti.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type != domain.PurposeRefresh {
		return nil, domain.ErrTokenPurpose
	}
	return claims.toDomain(), nil
}

// Verify implements TokenAuthority.
func (ti *TokenIssuer) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	_, span := ti.deps.Tracer.Start(ctx, "TokenIssuer.Verify")
	defer span.End()

	res := ti.VerifyAccess(token)
	span.SetAttributes(attribute.Bool("token.valid", res.Valid), attribute.Bool("token.expired", res.Expired))
	return res, nil
}

// Refresh mints a new access token from a refresh token. Permissions are
// re-derived from the current grant table; with a resolver configured the
// principal is re-fetched and must still be active.
func (ti *TokenIssuer) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ctx, span := ti.deps.Tracer.Start(ctx, "TokenIssuer.Refresh")
	defer span.End()

	res, err := ti.refresh(ctx, refreshToken)
	if err != nil {
		ti.deps.Metrics.ObserveRefresh("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.GetErrorCode(err))
		return nil, err
	}
	ti.deps.Metrics.ObserveRefresh("ok")
	span.SetAttributes(attribute.String("principal.kind", string(res.Principal.Kind)))
	return res, nil
}

func (ti *TokenIssuer) refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := ti.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	now := ti.deps.Clock.Now()
	if ti.isRevoked(claims.TokenID) {
		ti.deps.Logger.Warn("revoked refresh token replayed",
			slog.String("sub", claims.SubjectID),
			slog.String("jti", claims.TokenID))
		return nil, domain.ErrTokenRevoked
	}

	summary := claims.Summary()
	if ti.resolver != nil {
		p, err := ti.resolver.ResolvePrincipal(ctx, claims.Kind, claims.SubjectID)
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			return nil, domain.ErrTokenInvalid.WithDetails("principal no longer exists").WithCause(err)
		case err != nil && IsNetworkError(err):
			return nil, domain.ErrNetwork.WithCause(err)
		case err != nil:
			return nil, domain.ErrStorage.WithCause(err)
		case !p.IsActive():
			return nil, domain.ErrAccountDisabled
		}
		summary = domain.Summarize(p)
	}

	access, accessExp, err := ti.signAccess(summary.ID, summary.Kind, now)
	if err != nil {
		return nil, err
	}
	ti.deps.Metrics.ObserveIssued("access")

	res := &RefreshResult{
		AccessToken: access,
		ExpiresAt:   accessExp.Unix(),
		Principal:   summary,
	}

	if ti.cfg.RotateRefreshTokens {
		// The check-and-insert is atomic so two concurrent refreshes with
		// the same token cannot both rotate it.
		if !ti.revoke(claims.TokenID, claims.ExpiresTime()) {
			return nil, domain.ErrTokenRevoked
		}
		refresh, refreshExp, err := ti.signRefresh(summary.ID, summary.Kind, now)
		if err != nil {
			return nil, err
		}
		ti.deps.Metrics.ObserveIssued("refresh")
		res.RefreshToken = refresh
		res.RefreshExpiresAt = refreshExp.Unix()
		ti.pruneRevoked(now)
	}

	return res, nil
}

// RevokeRefresh denylists a refresh token until it expires. Tokens that
// are already invalid or expired need no entry.
func (ti *TokenIssuer) RevokeRefresh(refreshToken string) error {
	claims, err := ti.VerifyRefresh(refreshToken)
	if err != nil {
		if domain.IsKind(err, domain.KindTokenExpired) {
			ti.pruneRevoked(ti.deps.Clock.Now())
			return nil
		}
		return err
	}
	ti.revoke(claims.TokenID, claims.ExpiresTime())
	ti.pruneRevoked(ti.deps.Clock.Now())
	return nil
}

// RefreshRevoked reports whether refreshToken can no longer be exchanged
// because it fails verification or is on the denylist.
func (ti *TokenIssuer) RefreshRevoked(refreshToken string) bool {
	claims, err := ti.VerifyRefresh(refreshToken)
	return err != nil || ti.isRevoked(claims.TokenID)
}

// SessionRevoked implements RevocationHook by denylisting the session's
// refresh token.
func (ti *TokenIssuer) SessionRevoked(_ context.Context, s domain.Session, reason string) error {
	if s.RefreshToken == "" {
		return nil
	}
	if err := ti.RevokeRefresh(s.RefreshToken); err != nil {
		return err
	}
	ti.deps.Logger.Debug("refresh token revoked",
		slog.String("session_id", s.ID),
		slog.String("reason", reason))
	return nil
}

func (ti *TokenIssuer) isRevoked(jti string) bool {
	_, ok := ti.revoked.Get(jti)
	return ok
}

// revoke adds jti to the denylist. It returns false if it was already there.
func (ti *TokenIssuer) revoke(jti string, until time.Time) bool {
	added := false
	ti.revoked.Compute(jti, func(v time.Time, exists bool) (time.Time, bool) {
		if exists {
			return v, true
		}
		added = true
		return until, true
	})
	return added
}

func (ti *TokenIssuer) pruneRevoked(now time.Time) {
	ti.revoked.DeleteIf(func(_ string, until time.Time) bool {
		return !now.Before(until)
	})
}

// RevokedCount returns the number of denylisted refresh tokens.
func (ti *TokenIssuer) RevokedCount() int {
	return ti.revoked.Count()
}
