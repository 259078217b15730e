package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes.
const (
	SessionIDPrefix = "sess-"
	EventIDPrefix   = "evt-"
)

// Persisted entry names for a session.
const (
	EntryAccessToken      = "access_token"
	EntryRefreshToken     = "refresh_token"
	EntryPrincipalSummary = "principal_summary"
)

// SessionEntries lists every persisted entry name.
var SessionEntries = []string{EntryAccessToken, EntryRefreshToken, EntryPrincipalSummary}

// SessionState is the lifecycle state of a client session.
type SessionState int

const (
	StateNoSession SessionState = iota
	StateActive
	StateRefreshing
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	default:
		return "no_session"
	}
}

// Session is the authenticated state of one client context.
// Timestamps are Unix seconds, matching token claims.
type Session struct {
	// ID is "sess-" followed by a lower-cased ULID.
	ID string `json:"id"`

	Principal PrincipalSummary `json:"principal"`

	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	// ExpiresAt is the access token expiry.
	ExpiresAt int64 `json:"expires_at"`

	// RefreshExpiresAt is the refresh token expiry.
	RefreshExpiresAt int64 `json:"refresh_expires_at"`

	CreatedAt int64 `json:"created_at"`
}

// NewID generates a prefixed, lower-cased, time-ordered ULID.
func NewID(prefix string, now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID checks the "sess-" + ULID format.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	if len(id) != len(SessionIDPrefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}

// ExpiresAtTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiresAtTime() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// TimeToExpiry returns how long the access token remains valid at now.
func (s *Session) TimeToExpiry(now time.Time) time.Duration {
	return s.ExpiresAtTime().Sub(now)
}

// IsExpired reports whether the access token has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAtTime())
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}
