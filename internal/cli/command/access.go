package command

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/cli/connection"
	"github.com/yndnr/authcore-go/internal/cli/output"
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

type authorizeResult struct {
	Path     string               `json:"path,omitempty"`
	Resource domain.Resource      `json:"resource,omitempty"`
	Action   domain.Action        `json:"action,omitempty"`
	Kind     domain.PrincipalKind `json:"kind"`
	service.Decision
}

type resourceRequest struct {
	Resource domain.Resource `json:"resource"`
	Action   domain.Action   `json:"action"`
}

type accessLogResponse struct {
	Events []domain.AccessEvent `json:"events"`
	Total  int                  `json:"total"`
}

type eventView struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	Burst     bool      `json:"burst"`
	ID        string    `json:"id" table:"wide"`
	SessionID string    `json:"session_id" table:"wide"`
}

// AuthorizeCommand returns the authorize command.
func AuthorizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "authorize",
		Aliases:   []string{"authz"},
		Usage:     "Ask the server whether the stored session may reach a path or resource",
		ArgsUsage: "[PATH]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resource", Aliases: []string{"r"}, Usage: "Resource to check instead of a path"},
			&cli.StringFlag{Name: "action", Aliases: []string{"a"}, Usage: "Action on --resource", Value: string(domain.ActionRead)},
			&cli.BoolFlag{Name: "check", Usage: "Exit non-zero when access is denied"},
		},
		Action: authorize,
	}
}

// AccessCommand returns the access subcommand group.
func AccessCommand() *cli.Command {
	return &cli.Command{
		Name:  "access",
		Usage: "Inspect the unauthorized access log (administrators only)",
		Subcommands: []*cli.Command{
			{
				Name:  "log",
				Usage: "List recorded denials, oldest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by principal kind (buyer, merchant, administrator, anonymous)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Show only the most recent N events"},
				},
				Action: accessLog,
			},
			{
				Name:   "stats",
				Usage:  "Summarize recorded denials",
				Action: accessStats,
			},
		},
	}
}

// sessionCookiesFor returns the cookies of the stored session after
// verifying it. ok is false when there is no usable session.
func (e *Env) sessionCookiesFor(ctx context.Context) (cookies []*http.Cookie, ok bool, err error) {
	sm, err := e.SessionManager(false, nil)
	if err != nil {
		return nil, false, err
	}
	defer sm.Stop()

	if !sm.ValidateSession(ctx) {
		if _, kept := sm.Current(); kept {
			return nil, false, unusable(sm)
		}
		return nil, false, nil
	}
	s, _ := sm.Current()
	return sessionCookies(s), true, nil
}

// requireSession is sessionCookiesFor for commands that need a session.
func (e *Env) requireSession(ctx context.Context) ([]*http.Cookie, error) {
	cookies, ok, err := e.sessionCookiesFor(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoSession
	}
	return cookies, nil
}

func authorize(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	resource := c.String("resource")
	if (path == "") == (resource == "") {
		return domain.ErrBadRequest.WithDetails("give either a PATH or --resource")
	}

	var res authorizeResult
	if path != "" {
		// Anonymous callers get the anonymous decision.
		cookies, _, err := env.sessionCookiesFor(c.Context)
		if err != nil {
			return err
		}
		resp, err := env.Client.Get(c.Context, "/auth/authorize?path="+url.QueryEscape(path), cookies...)
		if err != nil {
			return err
		}
		if err := connection.ParseResponse(resp, &res); err != nil {
			return err
		}
	} else {
		cookies, err := env.requireSession(c.Context)
		if err != nil {
			return err
		}
		body := resourceRequest{Resource: domain.Resource(resource), Action: domain.Action(c.String("action"))}
		resp, err := env.Client.Post(c.Context, "/auth/authorize/resource", body, cookies...)
		if err != nil {
			return err
		}
		if err := connection.ParseResponse(resp, &res); err != nil {
			return err
		}
	}

	if err := env.Print(res); err != nil {
		return err
	}
	if c.Bool("check") && !res.Allowed {
		return domain.ErrUnauthorizedAccess.WithDetails(string(res.Reason))
	}
	return nil
}

func accessLog(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	cookies, err := env.requireSession(c.Context)
	if err != nil {
		return err
	}

	q := url.Values{}
	if k := c.String("kind"); k != "" {
		q.Set("kind", k)
	}
	if c.IsSet("limit") {
		q.Set("limit", strconv.Itoa(c.Int("limit")))
	}
	path := "/admin/v1/access/log"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := env.Client.Get(c.Context, path, cookies...)
	if err != nil {
		return err
	}
	var out accessLogResponse
	if err := connection.ParseResponse(resp, &out); err != nil {
		return err
	}

	views := make([]eventView, len(out.Events))
	for i, e := range out.Events {
		views[i] = eventView{
			Time:      e.Time(),
			Kind:      e.PrincipalKind.Label(),
			Path:      e.Path,
			Reason:    string(e.Reason),
			Burst:     e.Burst,
			ID:        e.ID,
			SessionID: e.SessionID,
		}
	}
	return env.Print(views)
}

func accessStats(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	cookies, err := env.requireSession(c.Context)
	if err != nil {
		return err
	}

	resp, err := env.Client.Get(c.Context, "/admin/v1/access/stats", cookies...)
	if err != nil {
		return err
	}
	var stats service.AccessStats
	if err := connection.ParseResponse(resp, &stats); err != nil {
		return err
	}

	if _, ok := env.Formatter.(*output.TableFormatter); !ok {
		return env.Print(stats)
	}
	return env.Print(statsTable(&stats))
}

// statsTable lays the stats out as metric/value rows.
func statsTable(s *service.AccessStats) *output.Table {
	t := &output.Table{}
	t.SetHeaders("METRIC", "VALUE")
	t.AddRow("total", strconv.Itoa(s.Total))
	t.AddRow("recent_window", strconv.Itoa(s.RecentWindowCount))

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		t.AddRow("kind/"+k, strconv.Itoa(s.ByKind[k]))
	}
	for _, p := range s.TopPaths {
		t.AddRow("path/"+p.Path, strconv.Itoa(p.Count))
	}
	return t
}
