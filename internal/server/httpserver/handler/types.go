package handler

import (
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// CodeOK is the envelope code of every successful response.
const CodeOK = "OK"

// NewResponse creates a success response. ts is Unix milliseconds.
func NewResponse(requestID string, ts int64, data any) *Response {
	return &Response{
		Code:      CodeOK,
		Message:   "Success",
		RequestID: requestID,
		Timestamp: ts,
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID string, ts int64, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: ts,
		Details:   details,
	}
}

// BuyerLoginRequest is the request body for POST /auth/buyer/login.
type BuyerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MerchantLoginRequest is the request body for POST /auth/merchant/login.
type MerchantLoginRequest struct {
	StoreName   string `json:"store_name"`
	CompanyName string `json:"company_name"`
	Password    string `json:"password"`
}

// AdminLoginRequest is the request body for POST /auth/admin/login.
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body of the login endpoints. The tokens
// themselves travel as cookies.
type LoginResponse struct {
	SessionID        string                  `json:"session_id"`
	Principal        domain.PrincipalSummary `json:"principal"`
	AccessExpiresAt  int64                   `json:"access_expires_at"`
	RefreshExpiresAt int64                   `json:"refresh_expires_at"`
}

// RefreshRequest is the optional request body for POST /auth/refresh.
// Without it the refresh token cookie is used.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// VerifyRequest is the request body for POST /auth/token/verify.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse is the response body for POST /auth/token/verify.
type VerifyResponse struct {
	Valid     bool                    `json:"valid"`
	Expired   bool                    `json:"expired"`
	Claims    *domain.TokenClaims     `json:"claims,omitempty"`
	Principal domain.PrincipalSummary `json:"principal"`
	// ErrorCode is set when Valid is false.
	ErrorCode string `json:"error_code,omitempty"`
}

// LogoutRequest is the optional request body for POST /auth/logout.
// A client that keeps its own tokens names the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutResponse is the response body for POST /auth/logout.
type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

// SessionResponse is the response body for GET /auth/session and cookie
// refreshes.
type SessionResponse struct {
	Session     domain.Session `json:"session"`
	Permissions []string       `json:"permissions"`
}

// AuthorizeResponse is the response body of the authorization queries.
type AuthorizeResponse struct {
	Path     string               `json:"path,omitempty"`
	Resource domain.Resource      `json:"resource,omitempty"`
	Action   domain.Action        `json:"action,omitempty"`
	Kind     domain.PrincipalKind `json:"kind"`
	service.Decision
}

// ResourceRequest is the request body for POST /auth/authorize/resource.
type ResourceRequest struct {
	Resource domain.Resource `json:"resource"`
	Action   domain.Action   `json:"action"`
}

// AccessLogResponse is the response body for GET /admin/v1/access/log.
type AccessLogResponse struct {
	Events []domain.AccessEvent `json:"events"`
	Total  int                  `json:"total"`
}

// HealthResponse is the response body for GET /health and GET /ready.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
