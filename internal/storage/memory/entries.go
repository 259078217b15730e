package memory

import (
	"context"
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// EntryStore keeps session entries for many namespaces.
type EntryStore struct {
	entries *cmap.Map[string, entry]
	clock   clock.Clock
}

// NewEntryStore creates an empty store. MaxAge is measured against clk.
func NewEntryStore(clk clock.Clock) *EntryStore {
	return &EntryStore{
		entries: cmap.New[string, entry](),
		clock:   clock.OrReal(clk),
	}
}

func entryKey(ns, name string) string {
	return ns + "\x00" + name
}

// Namespace returns the SecureStore view of one namespace.
func (s *EntryStore) Namespace(ns string) *Jar {
	return &Jar{store: s, ns: ns}
}

// Purge drops every entry of a namespace and returns how many were removed.
func (s *EntryStore) Purge(ns string) int {
	prefix := ns + "\x00"
	return s.entries.DeleteIf(func(k string, _ entry) bool {
		return strings.HasPrefix(k, prefix)
	})
}

// Sweep drops expired entries.
func (s *EntryStore) Sweep() int {
	now := s.clock.Now()
	return s.entries.DeleteIf(func(_ string, e entry) bool {
		return e.expired(now)
	})
}

// Len returns the number of stored entries, expired ones included.
func (s *EntryStore) Len() int {
	return s.entries.Count()
}

// Jar is one namespace of an EntryStore.
type Jar struct {
	store *EntryStore
	ns    string
}

var _ service.SecureStore = (*Jar)(nil)

// Get returns a live entry. Expired entries are removed on read.
func (j *Jar) Get(_ context.Context, name string) (string, bool, error) {
	key := entryKey(j.ns, name)
	e, ok := j.store.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if e.expired(j.store.clock.Now()) {
		j.store.entries.Delete(key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set writes an entry. A negative MaxAge deletes it.
func (j *Jar) Set(_ context.Context, name, value string, attrs service.EntryAttributes) error {
	key := entryKey(j.ns, name)
	if attrs.MaxAge < 0 {
		j.store.entries.Delete(key)
		return nil
	}
	e := entry{value: value}
	if attrs.MaxAge > 0 {
		e.expiresAt = j.store.clock.Now().Add(attrs.MaxAge)
	}
	j.store.entries.Set(key, e)
	return nil
}

// Delete removes an entry.
func (j *Jar) Delete(_ context.Context, name string) error {
	j.store.entries.Delete(entryKey(j.ns, name))
	return nil
}
