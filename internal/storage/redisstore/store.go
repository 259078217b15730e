// Package redisstore keeps server-side session entries in Redis so several
// authcore instances can share sessions.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// DefaultKeyPrefix namespaces every key this package writes.
const DefaultKeyPrefix = "authcore:entry:"

// Config configures the Redis connection.
type Config struct {
	Addrs     []string `koanf:"addrs"`
	Username  string   `koanf:"username"`
	Password  string   `koanf:"password"`
	DB        int      `koanf:"db"`
	KeyPrefix string   `koanf:"key_prefix"`
}

// Store is a Redis-backed store of namespaced session entries.
type Store struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redisstore: at least one address is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	s := NewWithClient(client, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(ns, name string) string {
	return s.prefix + ns + ":" + name
}

// Namespace returns the SecureStore view of one namespace.
func (s *Store) Namespace(ns string) *Jar {
	return &Jar{store: s, ns: ns}
}

// Purge deletes every entry in a namespace.
func (s *Store) Purge(ctx context.Context, ns string) (int, error) {
	pattern := s.prefix + ns + ":*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client if New created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Jar is one namespace of a Store.
type Jar struct {
	store *Store
	ns    string
}

var _ service.SecureStore = (*Jar)(nil)

// Get returns a live entry.
func (j *Jar) Get(ctx context.Context, name string) (string, bool, error) {
	v, err := j.store.client.Get(ctx, j.store.key(j.ns, name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, wrap("get", err)
	}
	return v, true, nil
}

// Set writes an entry with MaxAge as its TTL. A negative MaxAge deletes it.
func (j *Jar) Set(ctx context.Context, name, value string, attrs service.EntryAttributes) error {
	if attrs.MaxAge < 0 {
		return j.Delete(ctx, name)
	}
	ttl := attrs.MaxAge
	if ttl > 0 && ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := j.store.client.Set(ctx, j.store.key(j.ns, name), value, ttl).Err(); err != nil {
		return wrap("set", err)
	}
	return nil
}

// Delete removes an entry.
func (j *Jar) Delete(ctx context.Context, name string) error {
	if err := j.store.client.Del(ctx, j.store.key(j.ns, name)).Err(); err != nil {
		return wrap("del", err)
	}
	return nil
}

// wrap tags connectivity failures as network errors so callers classify
// them as retryable.
func wrap(op string, err error) error {
	err = fmt.Errorf("redis %s: %w", op, err)
	if IsUnavailable(err) {
		return domain.ErrNetwork.WithCause(err)
	}
	return err
}

// IsUnavailable reports whether err means Redis could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}
