package service

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// EntryAttributes describe how a persisted session entry is protected.
// They map one-to-one onto HTTP cookie attributes.
type EntryAttributes struct {
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Path     string
	MaxAge   time.Duration
}

// SecureStore persists the named entries of a session.
type SecureStore interface {
	// Get returns the entry value. ok is false when the entry does not
	// exist or has expired.
	Get(ctx context.Context, name string) (value string, ok bool, err error)

	// Set writes an entry with the given attributes.
	Set(ctx context.Context, name, value string, attrs EntryAttributes) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, name string) error
}

// PrincipalRepository looks up stored accounts.
// Find methods return domain.ErrUserNotFound when no account matches.
type PrincipalRepository interface {
	FindBuyerByEmail(ctx context.Context, email string) (*domain.BuyerAccount, error)
	FindMerchantBySellerKey(ctx context.Context, sellerKey string) (*domain.MerchantAccount, error)
	FindAdministrator(ctx context.Context, username string) (*domain.AdministratorAccount, error)

	// RecordLogin stamps the last login time of a principal.
	RecordLogin(ctx context.Context, kind domain.PrincipalKind, id string, at time.Time) error
}

// PrincipalResolver fetches the current state of a principal by ID.
// It returns domain.ErrUserNotFound for unknown principals.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, kind domain.PrincipalKind, id string) (domain.Principal, error)
}

// TokenAuthority verifies and refreshes tokens on behalf of a SessionManager.
// TokenIssuer implements it locally; the CLI implements it over HTTP.
type TokenAuthority interface {
	Verify(ctx context.Context, token string) (*VerifyResult, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// RevocationHook is told when a session is cleared.
type RevocationHook interface {
	SessionRevoked(ctx context.Context, session domain.Session, reason string) error
}

// RevocationFunc adapts a function to RevocationHook.
type RevocationFunc func(ctx context.Context, session domain.Session, reason string) error

// SessionRevoked calls f.
func (f RevocationFunc) SessionRevoked(ctx context.Context, session domain.Session, reason string) error {
	return f(ctx, session, reason)
}

// ExpiryNotifier receives the "session expiring" notice.
type ExpiryNotifier func(sessionID string, expiresAt time.Time)

// BurstHandler is told when a principal kind exceeds the denial burst threshold.
type BurstHandler func(event domain.AccessEvent, count int)
