package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce waits out the separate writes of a certificate and its key.
const DefaultDebounce = 250 * time.Millisecond

// ExpiryWarning is how close to NotAfter a loaded certificate gets logged
// at WARN.
const ExpiryWarning = 14 * 24 * time.Hour

// Watcher serves a certificate/key pair and reloads it when either file
// changes. A failed reload keeps the previous pair.
type Watcher struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	current atomic.Pointer[loaded]
	loads   atomic.Int64

	fs       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending *time.Timer
}

type loaded struct {
	cert     *tls.Certificate
	notAfter time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets how long the files must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the pair and starts watching the directories that hold
// it. Directories rather than files are watched so that rename-into-place
// deployments are seen.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, dir := range uniqueDirs(certFile, keyFile) {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.fs = fs
	return w, nil
}

func uniqueDirs(files ...string) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Start processes file events until Stop is called.
func (w *Watcher) Start() {
	certBase := filepath.Base(w.certFile)
	keyBase := filepath.Base(w.keyFile)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.schedule()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("certificate watcher error", "error", err)
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.pending != nil {
			w.pending.Stop()
		}
		w.mu.Unlock()
		if err := w.fs.Close(); err != nil {
			w.logger.Error("failed to close certificate watcher", "error", err)
		}
	})
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.reload(); err != nil {
			w.logger.Error("certificate reload failed, keeping the previous one",
				"error", err,
				"cert_file", w.certFile)
		}
	})
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
	}

	w.current.Store(&loaded{cert: &cert, notAfter: leaf.NotAfter})
	w.loads.Add(1)

	w.logger.Info("certificate loaded",
		"cert_file", w.certFile,
		"subject", leaf.Subject.String(),
		"not_after", leaf.NotAfter)
	if remaining := time.Until(leaf.NotAfter); remaining < ExpiryWarning {
		w.logger.Warn("certificate expires soon",
			"cert_file", w.certFile,
			"remaining", remaining.Round(time.Minute).String())
	}
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.current.Load().cert, nil
}

// NotAfter is the expiry of the certificate being served.
func (w *Watcher) NotAfter() time.Time {
	return w.current.Load().notAfter
}

// Loads counts successful loads, the initial one included.
func (w *Watcher) Loads() int64 {
	return w.loads.Load()
}

// TLSConfig returns a server config that always presents the current pair.
func (w *Watcher) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: w.GetCertificate,
	}
}
