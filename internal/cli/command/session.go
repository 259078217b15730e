package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// sessionView is the printable form of a session. Tokens are never shown.
type sessionView struct {
	ID               string               `json:"id"`
	Kind             domain.PrincipalKind `json:"kind"`
	Subject          string               `json:"subject"`
	DisplayName      string               `json:"display_name"`
	State            string               `json:"state"`
	ExpiresAt        time.Time            `json:"expires_at"`
	ExpiresIn        string               `json:"expires_in"`
	RefreshExpiresAt time.Time            `json:"refresh_expires_at" table:"wide"`
	CreatedAt        time.Time            `json:"created_at" table:"wide"`
}

func newSessionView(s domain.Session, state domain.SessionState, now time.Time) sessionView {
	v := sessionView{
		ID:          s.ID,
		Kind:        s.Principal.Kind,
		Subject:     s.Principal.ID,
		DisplayName: s.Principal.DisplayName,
		State:       state.String(),
		ExpiresAt:   s.ExpiresAtTime(),
		ExpiresIn:   "expired",
		CreatedAt:   time.Unix(s.CreatedAt, 0),
	}
	if s.RefreshExpiresAt > 0 {
		v.RefreshExpiresAt = time.Unix(s.RefreshExpiresAt, 0)
	}
	if d := s.TimeToExpiry(now); d > 0 {
		v.ExpiresIn = d.Round(time.Second).String()
	}
	return v
}

type logoutView struct {
	Server    string `json:"server"`
	LoggedOut bool   `json:"logged_out"`
}

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Inspect and manage the stored session",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Verify the stored session, refreshing it if the access token expired",
				Action: sessionStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Exchange the refresh token for a new access token",
				Action: sessionRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Revoke the refresh token and clear the stored session",
				Action: sessionLogout,
			},
			{
				Name:  "watch",
				Usage: "Keep the session alive, refreshing it before it expires",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "for",
						Usage: "Stop after this long (0 runs until interrupted)",
					},
				},
				Action: sessionWatch,
			},
		},
	}
}

// unusable explains why sm has no usable session after a failed check.
func unusable(sm *service.SessionManager) error {
	if _, ok := sm.Current(); ok {
		return domain.ErrNetwork.WithDetails("session kept; the server could not be reached")
	}
	return domain.ErrNoSession
}

func sessionStatus(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	sm, err := env.SessionManager(false, nil)
	if err != nil {
		return err
	}
	defer sm.Stop()

	if !sm.ValidateSession(c.Context) {
		return unusable(sm)
	}
	s, _ := sm.Current()
	return env.Print(newSessionView(s, sm.State(), time.Now()))
}

func sessionRefresh(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	sm, err := env.SessionManager(false, nil)
	if err != nil {
		return err
	}
	defer sm.Stop()

	ok, err := sm.Resume(c.Context)
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	if !ok {
		return domain.ErrNoSession
	}
	if !sm.RefreshSession(c.Context) {
		if _, kept := sm.Current(); kept {
			return domain.ErrNetwork.WithDetails("refresh failed; session kept")
		}
		return domain.ErrTokenInvalid.WithDetails("refresh rejected; sign in again")
	}

	s, _ := sm.Current()
	return env.Print(newSessionView(s, sm.State(), time.Now()))
}

func sessionLogout(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	sm, err := env.SessionManager(false, nil)
	if err != nil {
		return err
	}
	defer sm.Stop()

	if _, err := sm.Resume(c.Context); err != nil {
		env.Logger.Warn("stored session unreadable", "error", err)
	}
	sm.ClearSession(c.Context)

	jar, err := env.Jar()
	if err != nil {
		return err
	}
	if _, err := jar.Purge(c.Context, env.Namespace()); err != nil {
		return domain.ErrStorage.WithCause(err)
	}

	return env.Print(logoutView{Server: env.Client.BaseURL(), LoggedOut: true})
}

func sessionWatch(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}

	notify := func(sessionID string, expiresAt time.Time) {
		fmt.Fprintf(env.Err, "notice: %s (%s, expires %s)\n",
			service.ExpiringMessage, sessionID, expiresAt.Local().Format(time.TimeOnly))
	}
	sm, err := env.SessionManager(true, notify)
	if err != nil {
		return err
	}
	defer sm.Stop()
	if !sm.ValidateSession(c.Context) {
		return unusable(sm)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	s, _ := sm.Current()
	fmt.Fprintf(env.Err, "watching %s, access token expires %s\n",
		s.ID, s.ExpiresAtTime().Local().Format(time.TimeOnly))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := s.ExpiresAt
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur, ok := sm.Current()
			if !ok {
				return domain.ErrNoSession.WithDetails("session ended")
			}
			if cur.ExpiresAt != last {
				last = cur.ExpiresAt
				fmt.Fprintf(env.Err, "session refreshed, access token expires %s\n",
					cur.ExpiresAtTime().Local().Format(time.TimeOnly))
			}
		}
	}
}
