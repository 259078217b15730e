package service

import (
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

// maxTrackedLockouts bounds the tracker before stale entries are pruned.
const maxTrackedLockouts = 10000

// LockoutConfig configures administrator lockout.
type LockoutConfig struct {
	// Threshold is the number of failures that locks a username (default: 3).
	Threshold int
	// Window is the period failures are counted over (default: 15m).
	Window time.Duration
	// Cooldown is how long a username stays locked (default: 15m).
	Cooldown time.Duration
}

// DefaultLockoutConfig returns default configuration.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold: 3,
		Window:    15 * time.Minute,
		Cooldown:  15 * time.Minute,
	}
}

type lockoutEntry struct {
	failures     int
	firstFailure time.Time
	lockedUntil  time.Time
}

// LockoutTracker counts failed logins per key and locks keys that exceed
// the threshold.
type LockoutTracker struct {
	cfg     LockoutConfig
	clock   clock.Clock
	entries *cmap.Map[string, lockoutEntry]
}

// NewLockoutTracker creates a LockoutTracker. Zero config fields take defaults.
func NewLockoutTracker(cfg LockoutConfig, clk clock.Clock) *LockoutTracker {
	def := DefaultLockoutConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &LockoutTracker{
		cfg:     cfg,
		clock:   clock.OrReal(clk),
		entries: cmap.New[string, lockoutEntry](),
	}
}

func lockoutKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Check reports whether key is locked and for how much longer.
// A lock that has run out is forgotten together with its failures.
func (t *LockoutTracker) Check(key string) (bool, time.Duration) {
	now := t.clock.Now()
	var remaining time.Duration

	t.entries.Compute(lockoutKey(key), func(e lockoutEntry, exists bool) (lockoutEntry, bool) {
		if !exists {
			return e, false
		}
		if e.lockedUntil.IsZero() {
			return e, true
		}
		if now.Before(e.lockedUntil) {
			remaining = e.lockedUntil.Sub(now)
			return e, true
		}
		return lockoutEntry{}, false
	})

	return remaining > 0, remaining
}

// RecordFailure counts a failed attempt. It reports whether this failure
// locked the key.
func (t *LockoutTracker) RecordFailure(key string) bool {
	now := t.clock.Now()
	lockedNow := false

	t.entries.Compute(lockoutKey(key), func(e lockoutEntry, exists bool) (lockoutEntry, bool) {
		if exists && now.Before(e.lockedUntil) {
			// Attempts while locked do not extend or reset the lock.
			return e, true
		}
		if !exists || !e.lockedUntil.IsZero() || now.Sub(e.firstFailure) > t.cfg.Window {
			e = lockoutEntry{firstFailure: now}
		}
		e.failures++
		if e.failures >= t.cfg.Threshold {
			e.lockedUntil = now.Add(t.cfg.Cooldown)
			lockedNow = true
		}
		return e, true
	})

	if t.entries.Count() > maxTrackedLockouts {
		t.Prune()
	}
	return lockedNow
}

// Reset forgets every failure for key.
func (t *LockoutTracker) Reset(key string) {
	t.entries.Delete(lockoutKey(key))
}

// Failures returns the current failure count for key.
func (t *LockoutTracker) Failures(key string) int {
	e, _ := t.entries.Get(lockoutKey(key))
	return e.failures
}

// Prune drops entries whose window and lock have both passed.
func (t *LockoutTracker) Prune() int {
	now := t.clock.Now()
	return t.entries.DeleteIf(func(_ string, e lockoutEntry) bool {
		if !e.lockedUntil.IsZero() {
			return !now.Before(e.lockedUntil)
		}
		return now.Sub(e.firstFailure) > t.cfg.Window
	})
}
