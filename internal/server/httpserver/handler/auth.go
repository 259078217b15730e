package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// handleBuyerLogin handles POST /auth/buyer/login.
func (h *Handler) handleBuyerLogin(w http.ResponseWriter, r *http.Request) {
	var req BuyerLoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.completeLogin(w, r, h.credentials.AuthenticateBuyer(r.Context(), req.Email, req.Password))
}

// handleMerchantLogin handles POST /auth/merchant/login.
func (h *Handler) handleMerchantLogin(w http.ResponseWriter, r *http.Request) {
	var req MerchantLoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.completeLogin(w, r, h.credentials.AuthenticateMerchant(r.Context(), req.StoreName, req.CompanyName, req.Password))
}

// handleAdminLogin handles POST /auth/admin/login.
func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	res := h.credentials.AuthenticateAdministrator(r.Context(), req.Username, req.Password)
	if !res.Success && res.Error != nil && res.Error.Kind == domain.KindAccountLocked {
		if locked, remaining := h.credentials.Lockout().Check(strings.TrimSpace(req.Username)); locked {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
		}
	}
	h.completeLogin(w, r, res)
}

// completeLogin turns a successful AuthResult into a session and its cookies.
func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, res *service.AuthResult) {
	if !res.Success {
		h.handleServiceError(w, r, res.Err())
		return
	}

	sm, err := h.OpenSession(w, r)
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorage.WithCause(err))
		return
	}
	s, err := sm.CreateSession(r.Context(), res.Principal, res.Tokens)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	logger.L(r.Context()).Info("login succeeded",
		slog.String("kind", string(s.Principal.Kind)),
		slog.String("sub", s.Principal.ID),
		slog.String("session_id", s.ID))

	h.writeJSON(w, r, http.StatusOK, &LoginResponse{
		SessionID:        s.ID,
		Principal:        s.Principal,
		AccessExpiresAt:  s.ExpiresAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
	})
}

// handleRefresh handles POST /auth/refresh.
//
// With a refresh_token in the body the exchange is stateless and the new
// access token is returned in the body. Otherwise the cookie session is
// refreshed in place.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if req.RefreshToken != "" {
		res, err := h.authority.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, res)
		return
	}

	sm, err := h.resumeSession(r.Context(), w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if !sm.RefreshSession(r.Context()) {
		h.handleServiceError(w, r, domain.ErrTokenInvalid.WithDetails("refresh failed"))
		return
	}
	h.writeSession(w, r, sm)
}

// handleVerify handles POST /auth/token/verify.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.Token == "" {
		h.handleServiceError(w, r, domain.ErrTokenMissing)
		return
	}

	res, err := h.issuer.Verify(r.Context(), req.Token)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &VerifyResponse{
		Valid:     res.Valid,
		Expired:   res.Expired,
		Claims:    res.Claims,
		Principal: res.Summary,
		ErrorCode: domain.GetErrorCode(res.Err),
	})
}

// handleLogout handles POST /auth/logout. It always succeeds: the cookies
// are expired whether or not a session was found.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if req.RefreshToken != "" {
		if err := h.issuer.RevokeRefresh(req.RefreshToken); err != nil {
			logger.L(r.Context()).Debug("logout with unusable refresh token",
				slog.String("code", domain.GetErrorCode(err)))
		}
	}

	sm, err := h.OpenSession(w, r)
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorage.WithCause(err))
		return
	}
	if _, err := sm.Resume(r.Context()); err != nil {
		logger.L(r.Context()).Warn("logout could not load session", slog.String("error", err.Error()))
	}
	sm.ClearSession(r.Context())

	h.writeJSON(w, r, http.StatusOK, &LogoutResponse{LoggedOut: true})
}

// resumeSession opens the caller's session without verifying it.
func (h *Handler) resumeSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*service.SessionManager, error) {
	sm, err := h.OpenSession(w, r)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	ok, err := sm.Resume(ctx)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if !ok {
		return nil, domain.ErrNoSession
	}
	return sm, nil
}

// writeSession writes the current session of sm.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, sm *service.SessionManager) {
	s, ok := sm.Current()
	if !ok {
		h.handleServiceError(w, r, domain.ErrNoSession)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &SessionResponse{
		Session:     s,
		Permissions: h.access.Permissions(s.Principal.Kind),
	})
}
