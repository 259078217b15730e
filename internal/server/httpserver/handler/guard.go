package handler

import (
	"context"
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

type sessionKey struct{}

// WithSession adds the caller's session to the context.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session the Guard admitted.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}

// Guard admits a request only if the caller's session may open the route
// and, when resource is set, holds the resource:action grant.
// Denials are recorded in the access log and answered with AC-ACCS-4030.
func (h *Handler) Guard(resource domain.Resource, action domain.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok, err := h.currentSession(w, r)
			if err != nil {
				h.handleServiceError(w, r, err)
				return
			}
			kind := domain.KindAnonymous
			if ok {
				kind = s.Principal.Kind
			}

			dec := h.access.Check(service.AccessRequest{Path: r.URL.Path, Kind: kind, SessionID: s.ID})
			if !dec.Allowed {
				h.deny(w, r, dec.Reason)
				return
			}
			if resource != "" && !h.access.AuthorizeResourceAction(kind, resource, action) {
				h.access.RecordDenial(r.URL.Path, kind, domain.ReasonResourceDenied, s.ID)
				h.deny(w, r, domain.ReasonResourceDenied)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// currentSession validates the caller's session, refreshing it if the
// access token expired. ok is false for anonymous callers.
func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) (domain.Session, bool, error) {
	sm, err := h.OpenSession(w, r)
	if err != nil {
		return domain.Session{}, false, domain.ErrStorage.WithCause(err)
	}
	if !sm.ValidateSession(r.Context()) {
		return domain.Session{}, false, nil
	}
	s, ok := sm.Current()
	return s, ok, nil
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, reason domain.DenialReason) {
	h.handleServiceError(w, r, domain.ErrUnauthorizedAccess.WithDetails(string(reason)))
}
