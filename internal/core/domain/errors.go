package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed failure taxonomy shared by every component.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "InvalidCredentials"
	KindUserNotFound       ErrorKind = "UserNotFound"
	KindAccountDisabled    ErrorKind = "AccountDisabled"
	KindAccountLocked      ErrorKind = "AccountLocked"
	KindTokenExpired       ErrorKind = "TokenExpired"
	KindTokenInvalid       ErrorKind = "TokenInvalid"
	KindNetworkError       ErrorKind = "NetworkError"
	KindUnauthorizedAccess ErrorKind = "UnauthorizedAccess"
	KindUnknownError       ErrorKind = "UnknownError"
)

// ErrorKinds lists every member of the taxonomy in declaration order.
var ErrorKinds = []ErrorKind{
	KindInvalidCredentials,
	KindUserNotFound,
	KindAccountDisabled,
	KindAccountLocked,
	KindTokenExpired,
	KindTokenInvalid,
	KindNetworkError,
	KindUnauthorizedAccess,
	KindUnknownError,
}

// AuthError is a taxonomy-tagged error with a stable code.
//
// Codes follow AC-<AREA>-<NNNN>; the numeric part starts with the HTTP
// status the error maps to.
type AuthError struct {
	Kind    ErrorKind // Taxonomy member
	Code    string    // Error code (e.g., "AC-AUTH-4010")
	Message string    // Human-readable message
	Details string    // Optional additional details
	Cause   error     // Underlying error (if any)
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AuthError with the same code.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind ErrorKind, code, message string) *AuthError {
	return &AuthError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *AuthError) WithDetails(details string) *AuthError {
	c := *e
	c.Details = details
	return &c
}

// WithMessage returns a copy of the error with a replaced message.
func (e *AuthError) WithMessage(message string) *AuthError {
	c := *e
	c.Message = message
	return &c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *AuthError) WithCause(cause error) *AuthError {
	c := *e
	c.Cause = cause
	return &c
}

// Wrap is an alias of WithCause.
func (e *AuthError) Wrap(cause error) *AuthError {
	return e.WithCause(cause)
}

// AsAuthError extracts the outermost AuthError from an error chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind checks whether the outermost AuthError in err has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ae, ok := AsAuthError(err)
	return ok && ae.Kind == kind
}

// GetErrorCode extracts the error code from an error if it's an AuthError.
func GetErrorCode(err error) string {
	if ae, ok := AsAuthError(err); ok {
		return ae.Code
	}
	return ""
}

// GetErrorKind returns the taxonomy kind of err, or KindUnknownError.
func GetErrorKind(err error) ErrorKind {
	if ae, ok := AsAuthError(err); ok {
		return ae.Kind
	}
	return KindUnknownError
}

// ============================================================================
// Credential Errors (AUTH)
// ============================================================================

var (
	// ErrInvalidCredentials is the generic login failure.
	ErrInvalidCredentials = NewAuthError(KindInvalidCredentials, "AC-AUTH-4010", "invalid credentials")

	// ErrMalformedCredentials is returned before lookup when input fails format checks.
	ErrMalformedCredentials = NewAuthError(KindInvalidCredentials, "AC-AUTH-4000", "invalid credentials")

	// ErrUserNotFound is kept as a cause for diagnostics; callers see ErrInvalidCredentials.
	ErrUserNotFound = NewAuthError(KindUserNotFound, "AC-AUTH-4040", "principal not found")

	// ErrAccountDisabled indicates the principal exists but is inactive.
	ErrAccountDisabled = NewAuthError(KindAccountDisabled, "AC-AUTH-4031", "account disabled")

	// ErrAccountLocked indicates the administrator lockout is in effect.
	ErrAccountLocked = NewAuthError(KindAccountLocked, "AC-AUTH-4230", "account locked")

	// ErrLoginThrottled indicates too many login attempts from one client.
	ErrLoginThrottled = NewAuthError(KindAccountLocked, "AC-AUTH-4290", "too many login attempts")
)

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrTokenExpired indicates a well-signed token past its exp.
	ErrTokenExpired = NewAuthError(KindTokenExpired, "AC-TOKN-4011", "token expired")

	// ErrTokenInvalid indicates a malformed, mis-signed or wrong-purpose token.
	ErrTokenInvalid = NewAuthError(KindTokenInvalid, "AC-TOKN-4012", "invalid token")

	// ErrTokenPurpose indicates a token presented where the other kind is required.
	ErrTokenPurpose = NewAuthError(KindTokenInvalid, "AC-TOKN-4013", "token purpose mismatch")

	// ErrTokenRevoked indicates a rotated-out refresh token was replayed.
	ErrTokenRevoked = NewAuthError(KindTokenInvalid, "AC-TOKN-4014", "token revoked")

	// ErrTokenMissing indicates no token was presented.
	ErrTokenMissing = NewAuthError(KindTokenInvalid, "AC-TOKN-4015", "token not provided")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrNoSession indicates no session exists for the client context.
	ErrNoSession = NewAuthError(KindTokenInvalid, "AC-SESS-4010", "no active session")
)

// ============================================================================
// Access Errors (ACCS)
// ============================================================================

var (
	// ErrUnauthorizedAccess indicates a denied route or resource.
	ErrUnauthorizedAccess = NewAuthError(KindUnauthorizedAccess, "AC-ACCS-4030", "access denied")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an unexpected failure.
	ErrInternal = NewAuthError(KindUnknownError, "AC-SYS-5000", "internal error")

	// ErrStorage indicates a storage layer failure.
	ErrStorage = NewAuthError(KindUnknownError, "AC-SYS-5001", "storage error")

	// ErrNetwork indicates a transport failure talking to a collaborator.
	ErrNetwork = NewAuthError(KindNetworkError, "AC-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request body.
	ErrBadRequest = NewAuthError(KindUnknownError, "AC-SYS-4000", "bad request")
)

var knownErrors = map[string]*AuthError{}

func init() {
	for _, e := range []*AuthError{
		ErrInvalidCredentials, ErrMalformedCredentials, ErrUserNotFound,
		ErrAccountDisabled, ErrAccountLocked, ErrLoginThrottled,
		ErrTokenExpired, ErrTokenInvalid, ErrTokenPurpose, ErrTokenRevoked, ErrTokenMissing,
		ErrNoSession, ErrUnauthorizedAccess,
		ErrInternal, ErrStorage, ErrNetwork, ErrBadRequest,
	} {
		knownErrors[e.Code] = e
	}
}

// LookupError returns the sentinel registered for code. Clients use it to
// rebuild typed errors from a response envelope.
func LookupError(code string) (*AuthError, bool) {
	e, ok := knownErrors[code]
	return e, ok
}
