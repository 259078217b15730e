package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 2 * time.Second

// ReadinessCheck is a named dependency probe for GET /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: buildinfo.Version,
	})
}

// handleReady handles GET /ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := &HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	h.writeJSON(w, r, status, resp)
}
