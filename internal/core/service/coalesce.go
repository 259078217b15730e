package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yndnr/authcore-go/pkg/cmap"
)

// DefaultRefreshGrace is how long a completed refresh answers replays of the
// same refresh token.
const DefaultRefreshGrace = 10 * time.Second

// RefreshCoalescer is a TokenAuthority that collapses concurrent refreshes of
// the same refresh token into one call to the inner authority. Callers that
// arrive within the grace window after a successful exchange receive the same
// result instead of presenting an already-rotated token.
//
// SessionManager coalesces within one manager; RefreshCoalescer covers
// managers that are created per request and share nothing else.
type RefreshCoalescer struct {
	inner  TokenAuthority
	grace  time.Duration
	deps   Deps
	group  singleflight.Group
	recent *cmap.Map[string, recentRefresh]
}

// RevocationChecker is implemented by authorities that can tell whether a
// refresh token is still usable. RefreshCoalescer consults it before
// answering from a remembered exchange.
type RevocationChecker interface {
	RefreshRevoked(refreshToken string) bool
}

type recentRefresh struct {
	res   RefreshResult
	until time.Time
}

// NewRefreshCoalescer wraps inner. A zero grace selects DefaultRefreshGrace;
// a negative grace disables replay answers and only joins in-flight calls.
func NewRefreshCoalescer(inner TokenAuthority, grace time.Duration, deps Deps) *RefreshCoalescer {
	if grace == 0 {
		grace = DefaultRefreshGrace
	}
	if grace < 0 {
		grace = 0
	}
	return &RefreshCoalescer{
		inner:  inner,
		grace:  grace,
		deps:   deps.withDefaults(),
		recent: cmap.New[string, recentRefresh](),
	}
}

// Verify delegates to the inner authority.
func (c *RefreshCoalescer) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	return c.inner.Verify(ctx, token)
}

// Refresh exchanges refreshToken once per flight. Every caller receives its
// own copy of the result.
func (c *RefreshCoalescer) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	key := refreshKey(refreshToken)
	now := c.deps.Clock.Now()

	if r, ok := c.recent.Get(key); ok {
		if now.Before(r.until) && !c.revoked(refreshToken, &r.res) {
			c.deps.Logger.Debug("refresh answered from recent exchange")
			res := r.res
			return &res, nil
		}
		c.recent.Delete(key)
		c.prune(now)
	}

	// A flight is not cancelled when the caller that started it goes away.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(key, func() (any, error) {
		res, err := c.inner.Refresh(flightCtx, refreshToken)
		if err != nil {
			return nil, err
		}
		if c.grace > 0 {
			done := c.deps.Clock.Now()
			c.recent.Set(key, recentRefresh{res: *res, until: done.Add(c.grace)})
			c.prune(done)
		}
		return *res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.deps.Logger.Debug("refresh joined in-flight exchange")
	}
	res := v.(RefreshResult)
	return &res, nil
}

// Recent reports how many exchanges are held for replay.
func (c *RefreshCoalescer) Recent() int {
	return c.recent.Count()
}

// revoked reports whether a remembered exchange was invalidated by a logout
// or revocation. The token to check is the rotated one when the exchange
// rotated, otherwise the presented one.
func (c *RefreshCoalescer) revoked(presented string, res *RefreshResult) bool {
	checker, ok := c.inner.(RevocationChecker)
	if !ok {
		return false
	}
	live := presented
	if res.RefreshToken != "" {
		live = res.RefreshToken
	}
	return checker.RefreshRevoked(live)
}

func (c *RefreshCoalescer) prune(now time.Time) {
	c.recent.DeleteIf(func(_ string, r recentRefresh) bool {
		return !now.Before(r.until)
	})
}

// refreshKey keeps raw tokens out of the map.
func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
