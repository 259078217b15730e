package command

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/cli/connection"
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
)

// errServerSideSessions is returned when the server keeps tokens in its own
// store and hands out only an opaque session cookie.
var errServerSideSessions = errors.New("server keeps sessions server-side; the CLI needs a server with storage.backend=cookie")

type buyerLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type merchantLogin struct {
	StoreName   string `json:"store_name"`
	CompanyName string `json:"company_name"`
	Password    string `json:"password"`
}

type adminLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID        string                  `json:"session_id"`
	Principal        domain.PrincipalSummary `json:"principal"`
	AccessExpiresAt  int64                   `json:"access_expires_at"`
	RefreshExpiresAt int64                   `json:"refresh_expires_at"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func passwordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "Password (read from stdin when omitted)",
		EnvVars: []string{"AUTHCORE_PASSWORD"},
	}
}

// LoginCommand returns the login subcommand group.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store the session in the credential jar",
		Subcommands: []*cli.Command{
			{
				Name:  "buyer",
				Usage: "Sign in as a buyer",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
					passwordFlag(),
				},
				Action: func(c *cli.Context) error {
					pw, err := readPassword(c)
					if err != nil {
						return err
					}
					return login(c, "/auth/buyer/login", buyerLogin{Email: c.String("email"), Password: pw})
				},
			},
			{
				Name:  "merchant",
				Usage: "Sign in as a merchant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store", Usage: "Store name", Required: true},
					&cli.StringFlag{Name: "company", Usage: "Company name", Required: true},
					passwordFlag(),
				},
				Action: func(c *cli.Context) error {
					pw, err := readPassword(c)
					if err != nil {
						return err
					}
					return login(c, "/auth/merchant/login", merchantLogin{
						StoreName:   c.String("store"),
						CompanyName: c.String("company"),
						Password:    pw,
					})
				},
			},
			{
				Name:  "admin",
				Usage: "Sign in as an administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Administrator username", Required: true},
					passwordFlag(),
				},
				Action: func(c *cli.Context) error {
					pw, err := readPassword(c)
					if err != nil {
						return err
					}
					return login(c, "/auth/admin/login", adminLogin{Username: c.String("username"), Password: pw})
				},
			},
		},
	}
}

// readPassword returns --password or the first line of stdin.
func readPassword(c *cli.Context) (string, error) {
	if pw := c.String("password"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(c.App.ErrWriter, "Password: ")
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", domain.ErrMalformedCredentials.WithDetails("password is empty")
	}
	return line, nil
}

func login(c *cli.Context, path string, body any) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}

	resp, err := env.Client.Post(c.Context, path, body)
	if err != nil {
		return err
	}
	cookies := resp.Cookies()

	var out loginResponse
	if err := connection.ParseResponse(resp, &out); err != nil {
		return err
	}

	pair, err := tokensFromCookies(cookies, &out)
	if err != nil {
		return err
	}
	principal, ok := domain.PrincipalFromSummary(out.Principal)
	if !ok {
		return domain.ErrTokenInvalid.WithDetails("login response names no principal")
	}

	sm, err := env.SessionManager(false, nil)
	if err != nil {
		return err
	}
	defer sm.Stop()
	s, err := sm.CreateSession(c.Context, principal, pair)
	if err != nil {
		return err
	}

	env.Logger.Debug("signed in", "server", env.Client.BaseURL(), "server_session", out.SessionID)
	return env.Print(newSessionView(*s, sm.State(), time.Now()))
}

// tokensFromCookies reads the token pair out of the login Set-Cookie headers.
func tokensFromCookies(cookies []*http.Cookie, out *loginResponse) (*domain.TokenPair, error) {
	pair := &domain.TokenPair{
		AccessExpiresAt:  out.AccessExpiresAt,
		RefreshExpiresAt: out.RefreshExpiresAt,
	}
	sid := false
	for _, ck := range cookies {
		var dst *string
		switch ck.Name {
		case domain.EntryAccessToken:
			dst = &pair.AccessToken
		case domain.EntryRefreshToken:
			dst = &pair.RefreshToken
		case cookiestore.SIDCookie:
			sid = true
			continue
		default:
			continue
		}
		v, err := cookiestore.Decode(ck.Value)
		if err != nil {
			return nil, domain.ErrTokenInvalid.WithDetails("unreadable " + ck.Name + " cookie")
		}
		*dst = v
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		if sid {
			return nil, errServerSideSessions
		}
		return nil, domain.ErrTokenMissing.WithDetails("login response carried no tokens")
	}
	return pair, nil
}
