package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/cli/config"
	"github.com/yndnr/authcore-go/internal/cli/connection"
	"github.com/yndnr/authcore-go/internal/cli/output"
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
	"github.com/yndnr/authcore-go/internal/infra/tlsroots"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

const metaEnv = "env"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "authcore-cli",
		Usage:   "Sign in to authcore-server and inspect sessions and access decisions",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			SessionCommand(),
			AuthorizeCommand(),
			AccessCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

// globalFlags returns the global CLI flags. Server, output and jar fall
// back to AUTHCORE_* variables and then the config file.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "authcore-server address (e.g., localhost:5080) [$" + config.EnvServer + "]",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml [$" + config.EnvOutput + "]",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "jar",
			Usage: "Credential jar directory [$" + config.EnvJarDir + "]",
		},
		&cli.StringFlag{
			Name:    "jar-key",
			Usage:   "Passphrase that encrypts the credential jar",
			EnvVars: []string{"AUTHCORE_JAR_KEY"},
		},
		&cli.StringFlag{
			Name:  "ca-cert",
			Usage: "PEM bundle trusted for https servers",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// Env is the per-invocation state shared by commands.
type Env struct {
	Config     *config.CLIConfig
	ConfigPath string
	Client     *connection.HTTPClient
	Formatter  output.Formatter
	Logger     *slog.Logger
	Out        io.Writer
	Err        io.Writer

	jarKey string
	jar    *storage.BadgerStore
}

func setup(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := map[string]string{}
	for _, name := range []string{"server", "output", "jar", "ca-cert"} {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	cfg = config.Merge(cfg, os.Getenv, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log := logger.NewWithWriter(logger.Config{Level: level, Format: "text"}, c.App.ErrWriter)

	opts := []connection.Option{connection.WithTimeout(cfg.Timeout)}
	if cfg.CACert != "" {
		pool, err := tlsroots.NewPool()
		if err != nil {
			return err
		}
		if err := pool.AddCertFile(cfg.CACert); err != nil {
			return err
		}
		opts = append(opts, connection.WithTLSConfig(pool.TLSConfig()))
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaEnv] = &Env{
		Config:     cfg,
		ConfigPath: path,
		Client:     connection.NewHTTPClient(cfg.Server, opts...),
		Formatter:  output.NewFormatter(format, c.Bool("wide")),
		Logger:     log,
		Out:        c.App.Writer,
		Err:        c.App.ErrWriter,
		jarKey:     c.String("jar-key"),
	}
	return nil
}

func teardown(c *cli.Context) error {
	if env, ok := c.App.Metadata[metaEnv].(*Env); ok && env.jar != nil {
		err := env.jar.Close()
		env.jar = nil
		return err
	}
	return nil
}

// envFrom returns the Env set up by the app's Before hook.
func envFrom(c *cli.Context) (*Env, error) {
	env, ok := c.App.Metadata[metaEnv].(*Env)
	if !ok {
		return nil, fmt.Errorf("cli environment not initialised")
	}
	return env, nil
}

// Print formats v to the command output.
func (e *Env) Print(v any) error {
	return e.Formatter.Format(e.Out, v)
}

// Jar opens the credential jar on first use.
func (e *Env) Jar() (*storage.BadgerStore, error) {
	if e.jar != nil {
		return e.jar, nil
	}
	cfg := storage.DefaultBadgerConfig(e.Config.JarDir)
	cfg.GCInterval = 0
	jar, err := storage.OpenBadger(cfg, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("open credential jar: %w", err)
	}
	if e.jarKey != "" {
		if err := jar.EnableEncryption([]byte(e.jarKey)); err != nil {
			jar.Close()
			return nil, err
		}
	}
	e.jar = jar
	return jar, nil
}

// Namespace is the jar namespace holding the session for the current server.
func (e *Env) Namespace() string {
	return "server:" + e.Client.BaseURL()
}

// SessionManager returns a SessionManager over the jar namespace of the
// current server. notifier receives the "session expiring" notice and may
// be nil.
func (e *Env) SessionManager(renewal bool, notifier service.ExpiryNotifier) (*service.SessionManager, error) {
	jar, err := e.Jar()
	if err != nil {
		return nil, err
	}
	store, err := jar.Namespace(e.Namespace())
	if err != nil {
		return nil, err
	}

	deps := service.Deps{Logger: e.Logger}
	scfg := &service.SessionConfig{RefreshThreshold: e.Config.RefreshThreshold}
	if renewal {
		scfg.RenewalInterval = e.Config.RenewalInterval
	}
	classifier := service.NewErrorClassifier(nil, notifier, deps)
	return service.NewSessionManager(
		connection.NewRemoteAuthority(e.Client),
		store,
		classifier,
		e.revocation(),
		scfg,
		deps,
	), nil
}

// revocation tells the server to revoke the refresh token when the user
// logs out.
func (e *Env) revocation() service.RevocationHook {
	return service.RevocationFunc(func(ctx context.Context, s domain.Session, reason string) error {
		if reason != service.ReasonLogout || s.RefreshToken == "" {
			return nil
		}
		resp, err := e.Client.Post(ctx, "/auth/logout", logoutRequest{RefreshToken: s.RefreshToken})
		if err != nil {
			return err
		}
		return connection.ParseResponse(resp, nil)
	})
}

// sessionCookies presents a session the way a browser would, so endpoints
// that read the session from cookies see it.
func sessionCookies(s domain.Session) []*http.Cookie {
	return []*http.Cookie{
		{Name: domain.EntryAccessToken, Value: cookiestore.Encode(s.AccessToken)},
		{Name: domain.EntryRefreshToken, Value: cookiestore.Encode(s.RefreshToken)},
	}
}

// ExitCode maps an error onto the process exit status.
func ExitCode(err error) int {
	switch domain.GetErrorKind(err) {
	case domain.KindNetworkError:
		return 3
	case domain.KindInvalidCredentials, domain.KindUserNotFound, domain.KindAccountDisabled,
		domain.KindAccountLocked, domain.KindTokenExpired, domain.KindTokenInvalid:
		return 2
	case domain.KindUnauthorizedAccess:
		return 4
	default:
		return 1
	}
}

// PrintError prints err to w in the classifier's user-facing wording,
// followed by the code when there is one.
func PrintError(w io.Writer, err error) {
	ae, ok := domain.AsAuthError(err)
	if !ok {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	msg := service.UserMessage(ae.Kind)
	if ae.Details != "" {
		msg += " (" + ae.Details + ")"
	}
	fmt.Fprintf(w, "error: %s [%s]\n", msg, ae.Code)
}
