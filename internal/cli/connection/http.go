package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes bounds the envelope the client will decode.
const maxResponseBytes = 1 << 20

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithTLSConfig sets the TLS configuration used for https servers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *HTTPClient) {
		if cfg == nil {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = cfg
		c.client.Transport = tr
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewHTTPClient creates a new HTTP client. A server without a scheme is
// reached over http.
func NewHTTPClient(server string, opts ...Option) *HTTPClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &HTTPClient{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: "authcore-cli/" + buildinfo.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, cookies ...*http.Cookie) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, cookies)
}

// Post performs a POST request with a JSON body. body may be nil.
func (c *HTTPClient) Post(ctx context.Context, path string, body any, cookies ...*http.Cookie) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body, cookies)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, cookies []*http.Cookie) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork.WithCause(err)
	}
	return resp, nil
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

// ParseResponse reads the envelope of resp and decodes its data into target.
// Error envelopes come back as *domain.AuthError; codes the client does not
// know keep their server message under the kind their status implies.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return statusError(resp.StatusCode)
		}
		return fmt.Errorf("parse response: %w", err)
	}

	if resp.StatusCode >= 400 || (env.Code != "" && env.Code != "OK") {
		return envelopeError(resp.StatusCode, &env)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

func envelopeError(status int, env *envelope) error {
	ae, ok := domain.LookupError(env.Code)
	if !ok {
		ae = statusError(status)
		if env.Code != "" {
			ae = domain.NewAuthError(ae.Kind, env.Code, env.Message)
		}
	}
	if d, ok := env.Details.(string); ok && d != "" {
		ae = ae.WithDetails(d)
	}
	return ae
}

// statusError picks a sentinel for a response without a usable envelope.
func statusError(status int) *domain.AuthError {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrTokenInvalid
	case status == http.StatusForbidden:
		return domain.ErrUnauthorizedAccess
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return domain.ErrNetwork.WithDetails(fmt.Sprintf("server returned %d", status))
	case status >= 500:
		return domain.ErrInternal.WithDetails(fmt.Sprintf("server returned %d", status))
	default:
		return domain.ErrBadRequest.WithDetails(fmt.Sprintf("server returned %d", status))
	}
}
