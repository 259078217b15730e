package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// handleAuthorize handles GET /auth/authorize?path=. Anonymous callers are
// evaluated as such; the decision is returned, not enforced.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("path is required"))
		return
	}

	s, ok, err := h.currentSession(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	kind := domain.KindAnonymous
	if ok {
		kind = s.Principal.Kind
	}

	dec := h.access.Check(service.AccessRequest{Path: path, Kind: kind, SessionID: s.ID})
	h.writeJSON(w, r, http.StatusOK, &AuthorizeResponse{
		Path:     domain.NormalizePath(path),
		Kind:     kind,
		Decision: dec,
	})
}

// handleAuthorizeResource handles POST /auth/authorize/resource.
func (h *Handler) handleAuthorizeResource(w http.ResponseWriter, r *http.Request) {
	var req ResourceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.Resource == "" || req.Action == "" {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("resource and action are required"))
		return
	}

	s, ok, err := h.currentSession(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if !ok {
		h.handleServiceError(w, r, domain.ErrNoSession)
		return
	}

	kind := s.Principal.Kind
	dec := service.Decision{Allowed: h.access.AuthorizeResourceAction(kind, req.Resource, req.Action)}
	if !dec.Allowed {
		sig := h.access.RecordDenial(domain.FormatPermission(req.Resource, req.Action), kind, domain.ReasonResourceDenied, s.ID)
		dec.Reason = domain.ReasonResourceDenied
		dec.Burst = sig.Burst
	}

	h.writeJSON(w, r, http.StatusOK, &AuthorizeResponse{
		Resource: req.Resource,
		Action:   req.Action,
		Kind:     kind,
		Decision: dec,
	})
}

// handleAccessLog handles GET /admin/v1/access/log.
// Optional query parameters: kind filters by principal kind, limit keeps
// the most recent events.
func (h *Handler) handleAccessLog(w http.ResponseWriter, r *http.Request) {
	events := h.access.AccessLog()
	total := len(events)

	q := r.URL.Query()
	if k := q.Get("kind"); k != "" {
		want := domain.KindAnonymous
		if k != "anonymous" {
			parsed, ok := domain.ParsePrincipalKind(k)
			if !ok {
				h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("unknown kind "+k))
				return
			}
			want = parsed
		}
		filtered := events[:0]
		for _, e := range events {
			if e.PrincipalKind == want {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("limit must be a non-negative integer"))
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}

	h.writeJSON(w, r, http.StatusOK, &AccessLogResponse{Events: events, Total: total})
}

// handleAccessStats handles GET /admin/v1/access/stats.
func (h *Handler) handleAccessStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.access.UnauthorizedAccessStats())
}
