package handler

import (
	"net/http"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// handleSession handles GET /auth/session. An expired access token is
// refreshed on the way; an unusable session is cleared.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sm, err := h.OpenSession(w, r)
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorage.WithCause(err))
		return
	}
	if !sm.ValidateSession(r.Context()) {
		h.handleServiceError(w, r, domain.ErrNoSession)
		return
	}
	h.writeSession(w, r, sm)
}
