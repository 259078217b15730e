package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
	"github.com/yndnr/authcore-go/internal/infra/confloader"
	"github.com/yndnr/authcore-go/internal/infra/shutdown"
	"github.com/yndnr/authcore-go/internal/infra/tlsroots"
	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/server/httpserver"
	"github.com/yndnr/authcore-go/internal/server/httpserver/cookiestore"
	"github.com/yndnr/authcore-go/internal/server/httpserver/handler"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/storage/redisstore"
	"github.com/yndnr/authcore-go/internal/storage/sqlstore"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
	"github.com/yndnr/authcore-go/internal/telemetry/tracer"
)

// sweepInterval is how often expired server-side entries are dropped from
// the memory backend.
const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile   = flag.String("config", "", "Path to configuration file")
		showVersion  = flag.Bool("version", false, "Show version information")
		hashPassword = flag.Bool("hash-password", false, "Read a password from stdin, print its argon2id hash and exit")
		addr         = flag.String("addr", "", "Listen address, overrides http.addr")
		logLevel     = flag.String("log-level", "", "Log level, overrides log.level")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("authcore-server " + buildinfo.String())
		return nil
	}
	if *hashPassword {
		return printPasswordHash(os.Stdin, os.Stdout)
	}

	loader := newLoader(*configFile, flagOverrides(*addr, *logLevel))
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	slog.SetDefault(log)

	log.Info("starting authcore-server",
		"version", buildinfo.Version,
		"config", *configFile)
	log.Debug("configuration loaded", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownHandler := shutdown.NewHandler(cfg.HTTP.ShutdownTimeout)

	// Tracing
	traces := tracer.New(cfg.Telemetry, log)
	traces.SetGlobal()
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		return traces.Shutdown(ctx)
	})

	reg := metric.NewRegistry()
	deps := service.Deps{
		Logger:  log,
		Metrics: reg,
		Tracer:  traces.Tracer(tracer.InstrumentationName),
	}

	repo, repoChecks, err := initPrincipals(ctx, cfg, shutdownHandler)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init principals: %w", err)
	}

	stores, storeChecks, err := initStores(ctx, cfg, shutdownHandler)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init session store: %w", err)
	}

	issuer, err := service.NewTokenIssuer(cfg.TokenIssuerConfig(), repo, deps)
	if err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("init token issuer: %w", err)
	}

	rc := httpserver.DefaultRouterConfig()
	rc.Logger = log
	rc.Metrics = reg
	rc.CORSOrigins = cfg.HTTP.CORSOrigins
	rc.LoginRatePerMinute = cfg.HTTP.LoginRatePerMinute
	rc.LoginBurst = cfg.HTTP.LoginBurst
	rc.TrustProxy = cfg.HTTP.TrustProxy
	rc.AdminAllowList = cfg.HTTP.AdminAllowList
	rc.Handler = handler.Config{
		Issuer:       issuer,
		Credentials:  service.NewCredentialValidator(repo, issuer, nil, cfg.CredentialConfig(), deps),
		Access:       service.NewAccessController(cfg.AccessConfig(), nil, deps),
		Classifier:   service.NewErrorClassifier(cfg.ClassifierConfig(), nil, deps),
		Stores:       stores,
		Session:      cfg.SessionConfig(),
		RefreshGrace: cfg.Tokens.RefreshGrace,
		Checks:       append(repoChecks, storeChecks...),
		Deps:         deps,
	}
	router, _ := httpserver.NewRouter(rc)

	opts := httpserver.Options{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	if cfg.HTTP.TLSCertFile != "" {
		certs, err := tlsroots.NewWatcher(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			shutdownHandler.Shutdown()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		certs.StartAsync()
		shutdownHandler.OnShutdown(func(context.Context) error {
			certs.Stop()
			return nil
		})
		opts.TLSConfig = certs.TLSConfig()
	}

	if *configFile != "" {
		if err := watchConfig(loader, log, shutdownHandler); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	httpServer := httpserver.New(cfg.HTTP.Addr, router, opts)
	if err := httpServer.Listen(); err != nil {
		shutdownHandler.Shutdown()
		return fmt.Errorf("listen: %w", err)
	}

	// Registered last so it drains first.
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			"addr", httpServer.Addr(),
			"tls", opts.TLSConfig != nil,
			"storage", cfg.Storage.Backend)

		var err error
		if opts.TLSConfig != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	log.Info("server stopped gracefully")
	return nil
}

func newLoader(configFile string, overrides map[string]any) *confloader.Loader {
	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	return confloader.NewLoader(opts...)
}

// flagOverrides maps the non-empty command-line flags to config keys.
// They win over the file and the environment.
func flagOverrides(addr, logLevel string) map[string]any {
	m := make(map[string]any)
	if addr != "" {
		m["http.addr"] = addr
	}
	if logLevel != "" {
		m["log.level"] = logLevel
	}
	return m
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings need one.
func watchConfig(loader *confloader.Loader, log *slog.Logger, sh *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(loader.FilePath()); err != nil {
		w.Stop()
		return err
	}
	w.OnChange(func(path string) {
		cfg, err := loadConfig(loader)
		if err != nil {
			log.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	sh.OnShutdown(func(context.Context) error {
		return w.Stop()
	})
	return nil
}

// principalStore is what the services need from a principal backend.
type principalStore interface {
	service.PrincipalRepository
	service.PrincipalResolver
}

// initPrincipals opens the principal backend and seeds it with the
// configured accounts.
func initPrincipals(ctx context.Context, cfg *config.ServerConfig, sh *shutdown.Handler) (principalStore, []handler.ReadinessCheck, error) {
	buyers, merchants, admins := cfg.SeedAccounts()

	switch cfg.Storage.Principals {
	case config.PrincipalsSQLite:
		repo, err := sqlstore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sh.OnShutdown(func(context.Context) error { return repo.Close() })
		for _, b := range buyers {
			if err := repo.InsertBuyer(ctx, b); err != nil {
				return nil, nil, err
			}
		}
		for _, m := range merchants {
			if err := repo.InsertMerchant(ctx, m); err != nil {
				return nil, nil, err
			}
		}
		for _, a := range admins {
			if err := repo.InsertAdministrator(ctx, a); err != nil {
				return nil, nil, err
			}
		}
		return repo, []handler.ReadinessCheck{{Name: "sqlite", Check: repo.Ping}}, nil

	default:
		repo := memory.NewRepository()
		for _, b := range buyers {
			if err := repo.AddBuyer(b); err != nil {
				return nil, nil, err
			}
		}
		for _, m := range merchants {
			if err := repo.AddMerchant(m); err != nil {
				return nil, nil, err
			}
		}
		for _, a := range admins {
			if err := repo.AddAdministrator(a); err != nil {
				return nil, nil, err
			}
		}
		return repo, nil, nil
	}
}

// initStores selects where session entries live.
func initStores(ctx context.Context, cfg *config.ServerConfig, sh *shutdown.Handler) (handler.StoreFactory, []handler.ReadinessCheck, error) {
	opts := cookiestore.Options{Secure: cfg.Cookies.Secure, Domain: cfg.Cookies.Domain}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		entries := memory.NewEntryStore(nil)
		go sweep(ctx, entries)
		return cookiestore.Namespaced{
			Namespace: func(ns string) (service.SecureStore, error) { return entries.Namespace(ns), nil },
			Options:   opts,
			MaxAge:    cfg.Tokens.RefreshTTL,
		}, nil, nil

	case config.BackendRedis:
		rs, err := redisstore.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		sh.OnShutdown(func(context.Context) error { return rs.Close() })
		return cookiestore.Namespaced{
			Namespace: func(ns string) (service.SecureStore, error) { return rs.Namespace(ns), nil },
			Options:   opts,
			MaxAge:    cfg.Tokens.RefreshTTL,
		}, []handler.ReadinessCheck{{Name: "redis", Check: rs.Ping}}, nil

	default:
		return cookiestore.Cookies{Options: opts}, nil, nil
	}
}

func sweep(ctx context.Context, entries *memory.EntryStore) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := entries.Sweep(); n > 0 {
				slog.Debug("expired session entries swept", "count", n)
			}
		}
	}
}

// printPasswordHash hashes the first line of r for the accounts section.
func printPasswordHash(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
