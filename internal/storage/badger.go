package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
	"github.com/yndnr/authcore-go/pkg/crypto/adaptive"
)

// Common errors
var (
	ErrClosed       = errors.New("storage: closed")
	ErrSealed       = errors.New("storage: entry is encrypted and no key is configured")
	ErrBadNamespace = errors.New("storage: namespace must not be empty")
)

const (
	entryPrefix = "entry/"
	saltKey     = "meta/salt"

	flagPlain  byte = 0
	flagSealed byte = 1

	keyInfo = "authcore credential jar"
)

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	Dir         string        `koanf:"dir"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// DefaultBadgerConfig returns settings for a small single-user store.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		SyncWrites:  true,
	}
}

// BadgerStore is a Badger-backed store of namespaced session entries.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	mu     sync.RWMutex
	cipher adaptive.Cipher

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64
	closed     atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens (or creates) the store in cfg.Dir.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(&badgerLogger{logger: logger}).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 {
		go s.gcLoop()
	} else {
		close(s.doneCh)
	}

	logger.Debug("badger store opened", "dir", cfg.Dir, "gc_interval", cfg.GCInterval)
	return s, nil
}

// EnableEncryption derives the sealing key from passphrase and a salt kept
// in the store. The salt is created on first use, so the same passphrase
// opens the store across runs.
func (s *BadgerStore) EnableEncryption(passphrase []byte) error {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return err
	}
	key, err := adaptive.DeriveKey(passphrase, salt, keyInfo)
	if err != nil {
		return err
	}
	c, err := adaptive.New(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cipher = c
	s.mu.Unlock()

	s.logger.Debug("badger store encryption enabled", "cipher", c.Type())
	return nil
}

func (s *BadgerStore) loadOrCreateSalt() ([]byte, error) {
	var salt []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(saltKey))
		switch {
		case err == nil:
			salt, err = item.ValueCopy(nil)
			return err
		case errors.Is(err, badger.ErrKeyNotFound):
			if salt, err = adaptive.NewSalt(16); err != nil {
				return err
			}
			return txn.Set([]byte(saltKey), salt)
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load salt: %w", err)
	}
	return salt, nil
}

// Encrypted reports whether values are sealed on write.
func (s *BadgerStore) Encrypted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cipher != nil
}

// Namespace returns the SecureStore view of one namespace.
func (s *BadgerStore) Namespace(ns string) (*BadgerJar, error) {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return nil, ErrBadNamespace
	}
	return &BadgerJar{store: s, prefix: entryPrefix + ns + "/"}, nil
}

// Namespaces lists namespaces holding at least one live entry.
func (s *BadgerStore) Namespaces(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := strings.TrimPrefix(string(it.Item().Key()), entryPrefix)
			ns, _, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			if _, dup := seen[ns]; !dup {
				seen[ns] = struct{}{}
				out = append(out, ns)
			}
		}
		return nil
	})
	return out, err
}

// Purge removes every entry in a namespace.
func (s *BadgerStore) Purge(ctx context.Context, ns string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	prefix := []byte(entryPrefix + ns + "/")
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *BadgerStore) get(key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get: %w", err)
	}
	value, err := s.open(key, raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *BadgerStore) set(key, value string, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	raw, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), raw)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) delete(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// seal prefixes the value with a format flag; the key is bound as
// additional data so sealed values cannot be swapped between entries.
func (s *BadgerStore) seal(key, value string) ([]byte, error) {
	s.mu.RLock()
	c := s.cipher
	s.mu.RUnlock()

	if c == nil {
		return append([]byte{flagPlain}, value...), nil
	}
	ct, err := c.Encrypt([]byte(value), []byte(key))
	if err != nil {
		return nil, fmt.Errorf("badger seal: %w", err)
	}
	return append([]byte{flagSealed}, ct...), nil
}

func (s *BadgerStore) open(key string, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("badger: empty record for %q", key)
	}
	switch raw[0] {
	case flagPlain:
		return string(raw[1:]), nil
	case flagSealed:
		s.mu.RLock()
		c := s.cipher
		s.mu.RUnlock()
		if c == nil {
			return "", ErrSealed
		}
		pt, err := c.Decrypt(raw[1:], []byte(key))
		if err != nil {
			return "", fmt.Errorf("badger open: %w", err)
		}
		return string(pt), nil
	default:
		return "", fmt.Errorf("badger: unknown record format %d", raw[0])
	}
}

// GC reclaims value log space. It returns the number of files rewritten.
func (s *BadgerStore) GC(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	rewritten := 0
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return rewritten, fmt.Errorf("gc: %w", err)
		}
		rewritten++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRuns.Add(1)

	s.logger.Debug("badger gc completed", "rewritten", rewritten, "elapsed", time.Since(start))
	return rewritten, ctx.Err()
}

// RegisterMetrics exposes store size and GC gauges through reg.
func (s *BadgerStore) RegisterMetrics(reg *metric.Registry) error {
	size := func(pick func(lsm, vlog int64) int64) func() float64 {
		return func() float64 {
			if s.closed.Load() {
				return 0
			}
			return float64(pick(s.db.Size()))
		}
	}
	return reg.Register(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes",
		}, size(func(lsm, _ int64) int64 { return lsm })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes",
		}, size(func(_, vlog int64) int64 { return vlog })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "badger",
			Name:      "last_gc_timestamp_seconds",
			Help:      "Unix timestamp of the last Badger GC run",
		}, func() float64 { return float64(s.lastGCTime.Load()) / 1000.0 }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "badger",
			Name:      "gc_runs_total",
			Help:      "Badger value log GC passes",
		}, func() float64 { return float64(s.gcRuns.Load()) }),
	)
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := s.GC(ctx); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.Warn("badger auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// BadgerJar is one namespace of a BadgerStore.
type BadgerJar struct {
	store  *BadgerStore
	prefix string
}

var _ service.SecureStore = (*BadgerJar)(nil)

// Get returns a live entry.
func (j *BadgerJar) Get(_ context.Context, name string) (string, bool, error) {
	return j.store.get(j.prefix + name)
}

// Set writes an entry. MaxAge becomes the Badger TTL; a negative MaxAge
// deletes the entry, mirroring cookie semantics.
func (j *BadgerJar) Set(_ context.Context, name, value string, attrs service.EntryAttributes) error {
	if attrs.MaxAge < 0 {
		return j.store.delete(j.prefix + name)
	}
	return j.store.set(j.prefix+name, value, attrs.MaxAge)
}

// Delete removes an entry.
func (j *BadgerJar) Delete(_ context.Context, name string) error {
	return j.store.delete(j.prefix + name)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
