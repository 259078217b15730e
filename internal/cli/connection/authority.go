package connection

import (
	"context"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// Server endpoints used by RemoteAuthority.
const (
	PathVerify  = "/auth/token/verify"
	PathRefresh = "/auth/refresh"
)

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid     bool                    `json:"valid"`
	Expired   bool                    `json:"expired"`
	Claims    *domain.TokenClaims     `json:"claims"`
	Principal domain.PrincipalSummary `json:"principal"`
	ErrorCode string                  `json:"error_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RemoteAuthority verifies and refreshes tokens through authcore-server.
// Transport failures surface as domain.ErrNetwork, which a SessionManager
// treats as retryable and does not clear the session for.
type RemoteAuthority struct {
	client *HTTPClient
}

var _ service.TokenAuthority = (*RemoteAuthority)(nil)

// NewRemoteAuthority creates a RemoteAuthority.
func NewRemoteAuthority(client *HTTPClient) *RemoteAuthority {
	return &RemoteAuthority{client: client}
}

// Verify asks the server to check token.
func (a *RemoteAuthority) Verify(ctx context.Context, token string) (*service.VerifyResult, error) {
	resp, err := a.client.Post(ctx, PathVerify, verifyRequest{Token: token})
	if err != nil {
		return nil, err
	}

	var out verifyResponse
	if err := ParseResponse(resp, &out); err != nil {
		return nil, err
	}

	res := &service.VerifyResult{
		Valid:   out.Valid,
		Expired: out.Expired,
		Claims:  out.Claims,
		Summary: out.Principal,
	}
	if (res.Valid || res.Expired) && res.Claims == nil {
		return &service.VerifyResult{Err: domain.ErrTokenInvalid.WithDetails("verify response without claims")}, nil
	}
	if !res.Valid {
		res.Err = codeError(out.ErrorCode, res.Expired)
	}
	return res, nil
}

// Refresh exchanges refreshToken for a new access token.
func (a *RemoteAuthority) Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error) {
	resp, err := a.client.Post(ctx, PathRefresh, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var out service.RefreshResult
	if err := ParseResponse(resp, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, domain.ErrTokenInvalid.WithDetails("refresh response without access token")
	}
	return &out, nil
}

func codeError(code string, expired bool) error {
	if ae, ok := domain.LookupError(code); ok {
		return ae
	}
	if expired {
		return domain.ErrTokenExpired
	}
	return domain.ErrTokenInvalid
}
