package cookiestore

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/authcore-go/internal/core/service"
)

// SIDCookie names the opaque cookie that selects a server-side namespace.
const SIDCookie = "authcore_sid"

// Cookies opens a CookieStore for every request.
type Cookies struct {
	Options
}

// Open implements handler.StoreFactory.
func (c Cookies) Open(w http.ResponseWriter, r *http.Request) (service.SecureStore, error) {
	return New(w, r, c.Options), nil
}

// NamespaceFunc returns the entry jar for a namespace.
type NamespaceFunc func(ns string) (service.SecureStore, error)

// Namespaced keeps session entries on the server, in the namespace named by
// the caller's authcore_sid cookie. The cookie is minted on the first write.
type Namespaced struct {
	Namespace NamespaceFunc
	Options
	// MaxAge is the lifetime of the sid cookie. Zero makes it a browser
	// session cookie.
	MaxAge time.Duration
}

// Open implements handler.StoreFactory.
func (n Namespaced) Open(w http.ResponseWriter, r *http.Request) (service.SecureStore, error) {
	s := &sidStore{w: w, cfg: n}
	if c, err := r.Cookie(SIDCookie); err == nil && ValidSID(c.Value) {
		if err := s.bind(c.Value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NamespaceFor returns the namespace a sid maps to.
func NamespaceFor(sid string) string {
	return "sid:" + sid
}

// ValidSID reports whether v looks like a sid this package minted.
func ValidSID(v string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(v))
	return err == nil
}

type sidStore struct {
	w   http.ResponseWriter
	cfg Namespaced
	jar service.SecureStore
}

func (s *sidStore) bind(sid string) error {
	jar, err := s.cfg.Namespace(NamespaceFor(sid))
	if err != nil {
		return err
	}
	s.jar = jar
	return nil
}

func (s *sidStore) Get(ctx context.Context, name string) (string, bool, error) {
	if s.jar == nil {
		return "", false, nil
	}
	return s.jar.Get(ctx, name)
}

func (s *sidStore) Set(ctx context.Context, name, value string, attrs service.EntryAttributes) error {
	if s.jar == nil {
		sid := strings.ToLower(ulid.Make().String())
		if err := s.bind(sid); err != nil {
			return err
		}
		c := &http.Cookie{
			Name:     SIDCookie,
			Value:    sid,
			Path:     "/",
			Domain:   s.cfg.Domain,
			HttpOnly: true,
			Secure:   s.cfg.Secure,
			SameSite: http.SameSiteStrictMode,
		}
		if s.cfg.MaxAge > 0 {
			c.MaxAge = int(s.cfg.MaxAge / time.Second)
		}
		replaceCookie(s.w.Header(), c)
	}
	return s.jar.Set(ctx, name, value, attrs)
}

func (s *sidStore) Delete(ctx context.Context, name string) error {
	if s.jar == nil {
		return nil
	}
	return s.jar.Delete(ctx, name)
}
