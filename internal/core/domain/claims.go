package domain

import "time"

// TokenPurpose tags a refresh token so it cannot be used as an access token.
// Access tokens carry no purpose tag.
type TokenPurpose string

const (
	PurposeAccess  TokenPurpose = ""
	PurposeRefresh TokenPurpose = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenClaims is the decoded, library-independent view of a token.
// Timestamps are epoch seconds.
type TokenClaims struct {
	SubjectID   string        `json:"sub"`
	Kind        PrincipalKind `json:"role"`
	IssuedAt    int64         `json:"iat"`
	ExpiresAt   int64         `json:"exp"`
	Permissions []string      `json:"permissions,omitempty"`
	Purpose     TokenPurpose  `json:"type,omitempty"`
	TokenID     string        `json:"jti,omitempty"`
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (c *TokenClaims) ExpiresTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *TokenClaims) IsRefresh() bool {
	return c.Purpose == PurposeRefresh
}

// Summary projects the claims onto a principal summary without a display name.
func (c *TokenClaims) Summary() PrincipalSummary {
	return PrincipalSummary{ID: c.SubjectID, Kind: c.Kind}
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// AccessExpiry returns the access token expiry as a time.Time.
func (p *TokenPair) AccessExpiry() time.Time {
	return time.Unix(p.AccessExpiresAt, 0)
}

// RefreshExpiry returns the refresh token expiry as a time.Time.
func (p *TokenPair) RefreshExpiry() time.Time {
	return time.Unix(p.RefreshExpiresAt, 0)
}

// MaskToken returns a masked version of a token for safe logging.
// Shows first 6 and last 4 characters.
func MaskToken(token string) string {
	if len(token) <= 10 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
