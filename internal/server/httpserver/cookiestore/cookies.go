// Package cookiestore adapts HTTP cookies to service.SecureStore.
//
// A CookieStore lives for one request: it reads the request's cookies and
// answers writes with Set-Cookie headers. Namespaced keeps the entries on the
// server instead and hands the browser only an opaque session cookie.
package cookiestore

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/authcore-go/internal/core/service"
)

// Options controls attributes the SessionManager does not decide.
type Options struct {
	// Secure forces the Secure attribute on every cookie it writes, on top
	// of the per-entry attribute.
	Secure bool
	// Domain is written to every cookie when set.
	Domain string
}

// CookieStore is a request-scoped SecureStore over browser cookies.
// Values are base64url encoded, so JSON entries survive cookie syntax.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts Options

	mu sync.Mutex
	// overlay holds writes made during this request; a nil value is a delete.
	overlay map[string]*string
}

var _ service.SecureStore = (*CookieStore)(nil)

// New returns a CookieStore for one request/response pair.
func New(w http.ResponseWriter, r *http.Request, opts Options) *CookieStore {
	return &CookieStore{w: w, r: r, opts: opts, overlay: make(map[string]*string)}
}

// Get returns an entry, preferring writes made earlier in the same request.
func (s *CookieStore) Get(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	v, written := s.overlay[name]
	s.mu.Unlock()
	if written {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	c, err := s.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false, nil
	}
	value, err := Decode(c.Value)
	if err != nil {
		// A cookie we cannot read is as good as absent.
		return "", false, nil
	}
	return value, true, nil
}

// Set writes an entry as a cookie. A negative MaxAge deletes it.
func (s *CookieStore) Set(ctx context.Context, name, value string, attrs service.EntryAttributes) error {
	if attrs.MaxAge < 0 {
		return s.Delete(ctx, name)
	}

	c := &http.Cookie{
		Name:     name,
		Value:    Encode(value),
		Path:     attrs.Path,
		Domain:   s.opts.Domain,
		HttpOnly: attrs.HTTPOnly,
		Secure:   attrs.Secure || s.opts.Secure,
		SameSite: attrs.SameSite,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteStrictMode
	}
	if attrs.MaxAge > 0 {
		c.MaxAge = int((attrs.MaxAge + time.Second - 1) / time.Second)
	}

	s.mu.Lock()
	s.overlay[name] = &value
	s.mu.Unlock()

	replaceCookie(s.w.Header(), c)
	return nil
}

// Delete expires the cookie.
func (s *CookieStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	s.overlay[name] = nil
	s.mu.Unlock()

	replaceCookie(s.w.Header(), &http.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   s.opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// replaceCookie sets c, dropping any Set-Cookie for the same name written
// earlier in the response.
func replaceCookie(h http.Header, c *http.Cookie) {
	prefix := c.Name + "="
	var kept []string
	for _, line := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	h.Del("Set-Cookie")
	for _, line := range kept {
		h.Add("Set-Cookie", line)
	}
	if v := c.String(); v != "" {
		h.Add("Set-Cookie", v)
	}
}

// Encode converts an entry value into a cookie-safe string.
func Encode(value string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// Decode reverses Encode.
func Decode(value string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
