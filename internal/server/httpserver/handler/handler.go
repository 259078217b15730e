// Package handler provides the HTTP endpoints of authcore-server.
//
// Every JSON response uses the Response envelope. Error statuses come from
// the numeric part of the error code: AC-AUTH-4230 answers 423.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// StoreFactory opens the SecureStore that backs one request's session.
type StoreFactory interface {
	Open(w http.ResponseWriter, r *http.Request) (service.SecureStore, error)
}

// Config wires a Handler.
type Config struct {
	Issuer      *service.TokenIssuer
	Credentials *service.CredentialValidator
	Access      *service.AccessController
	Classifier  *service.ErrorClassifier
	Stores      StoreFactory

	// Session configures the request-scoped session managers. Background
	// renewal is always off on the server.
	Session *service.SessionConfig

	// Revocation is told when a session is cleared. Defaults to Issuer.
	Revocation service.RevocationHook

	// RefreshGrace is how long a completed refresh answers concurrent or
	// replayed requests carrying the same refresh token. Zero selects
	// service.DefaultRefreshGrace; negative only joins in-flight refreshes.
	RefreshGrace time.Duration

	// Checks gate GET /ready.
	Checks []ReadinessCheck

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// LoginMiddleware wraps the login endpoints, typically a throttle.
	LoginMiddleware func(http.Handler) http.Handler

	// AdminMiddleware wraps the /admin endpoints ahead of the Guard.
	AdminMiddleware func(http.Handler) http.Handler

	Deps service.Deps
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	issuer      *service.TokenIssuer
	authority   *service.RefreshCoalescer
	credentials *service.CredentialValidator
	access      *service.AccessController
	classifier  *service.ErrorClassifier
	stores      StoreFactory
	session     service.SessionConfig
	revocation  service.RevocationHook
	checks      []ReadinessCheck
	metrics     http.Handler
	loginMW     func(http.Handler) http.Handler
	adminMW     func(http.Handler) http.Handler
	deps        service.Deps
	logger      *slog.Logger
	mux         *http.ServeMux
}

// New creates a Handler and registers its routes.
func New(cfg Config) *Handler {
	sess := service.DefaultSessionConfig()
	if cfg.Session != nil {
		sess = cfg.Session
	}
	h := &Handler{
		issuer:      cfg.Issuer,
		credentials: cfg.Credentials,
		access:      cfg.Access,
		classifier:  cfg.Classifier,
		stores:      cfg.Stores,
		session:     *sess,
		revocation:  cfg.Revocation,
		checks:      cfg.Checks,
		metrics:     cfg.Metrics,
		loginMW:     cfg.LoginMiddleware,
		adminMW:     cfg.AdminMiddleware,
		deps:        cfg.Deps,
		logger:      cfg.Deps.Logger,
		mux:         http.NewServeMux(),
	}
	h.session.RenewalInterval = 0
	h.deps.Clock = clock.OrReal(h.deps.Clock)
	if h.issuer != nil {
		h.authority = service.NewRefreshCoalescer(h.issuer, cfg.RefreshGrace, h.deps)
	}
	if h.revocation == nil && h.issuer != nil {
		h.revocation = h.issuer
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.classifier == nil {
		h.classifier = service.NewErrorClassifier(nil, nil, h.deps)
	}
	if h.loginMW == nil {
		h.loginMW = identity
	}
	if h.adminMW == nil {
		h.adminMW = identity
	}

	h.registerRoutes()
	return h
}

func identity(next http.Handler) http.Handler { return next }

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	// Probes
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	// Login
	h.mux.Handle("POST /auth/buyer/login", h.loginMW(http.HandlerFunc(h.handleBuyerLogin)))
	h.mux.Handle("POST /auth/merchant/login", h.loginMW(http.HandlerFunc(h.handleMerchantLogin)))
	h.mux.Handle("POST /auth/admin/login", h.loginMW(http.HandlerFunc(h.handleAdminLogin)))

	// Tokens and sessions
	h.mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	h.mux.HandleFunc("POST /auth/token/verify", h.handleVerify)
	h.mux.HandleFunc("POST /auth/logout", h.handleLogout)
	h.mux.HandleFunc("GET /auth/session", h.handleSession)

	// Authorization queries
	h.mux.HandleFunc("GET /auth/authorize", h.handleAuthorize)
	h.mux.HandleFunc("POST /auth/authorize/resource", h.handleAuthorizeResource)

	// Admin
	admin := func(fn http.HandlerFunc) http.Handler {
		return h.adminMW(h.Guard(domain.ResourceSystem, domain.ActionRead)(fn))
	}
	h.mux.Handle("GET /admin/v1/access/log", admin(h.handleAccessLog))
	h.mux.Handle("GET /admin/v1/access/stats", admin(h.handleAccessStats))
}

// OpenSession returns a SessionManager bound to the caller's stored session.
// Managers of concurrent requests share one refresh per refresh token.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) (*service.SessionManager, error) {
	store, err := h.stores.Open(w, r)
	if err != nil {
		return nil, err
	}
	return service.NewSessionManager(h.authority, store, h.classifier, h.revocation, &h.session, h.deps), nil
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, h.nowMillis(), data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, h.nowMillis(), code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := domain.AsAuthError(err)
	if !ok {
		logger.L(r.Context()).Error("internal error", "error", err)
		ae = domain.ErrInternal
	}
	status := ErrorCodeToHTTPStatus(ae.Code)
	if status >= http.StatusInternalServerError && ae.Cause != nil {
		logger.L(r.Context()).Error("request failed", "code", ae.Code, "error", ae.Cause)
	}

	var details any
	if ae.Details != "" {
		details = ae.Details
	}
	h.writeError(w, r, status, ae.Code, ae.Message, details)
}

func (h *Handler) nowMillis() int64 {
	return h.deps.Clock.Now().UnixMilli()
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.ErrBadRequest.WithDetails("invalid JSON body").WithCause(err)
	}
	return nil
}

// getRequestID extracts the request ID set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// ErrorCodeToHTTPStatus maps an AC-<AREA>-<NNNN> code to its HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	idx := strings.LastIndex(code, "-")
	if idx < 0 || len(code)-idx-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[idx+1:])
	if err != nil {
		return http.StatusInternalServerError
	}
	status := n / 10
	if status < 400 || status > 599 || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}
