package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verbatimhq/authcore/internal/audit"
	"github.com/verbatimhq/authcore/internal/cache"
	"github.com/verbatimhq/authcore/internal/config"
	"github.com/verbatimhq/authcore/internal/domain/repository"
	"github.com/verbatimhq/authcore/internal/email"
	authctrl "github.com/verbatimhq/authcore/internal/http/controllers/auth"
	"github.com/verbatimhq/authcore/internal/http/helpers"
	"github.com/verbatimhq/authcore/internal/http/router"
	svcauth "github.com/verbatimhq/authcore/internal/http/services/auth"
	"github.com/verbatimhq/authcore/internal/metrics"
	"github.com/verbatimhq/authcore/internal/mfa"
	"github.com/verbatimhq/authcore/internal/oauth"
	"github.com/verbatimhq/authcore/internal/oauth/github"
	"github.com/verbatimhq/authcore/internal/oauth/google"
	"github.com/verbatimhq/authcore/internal/observability/logger"
	"github.com/verbatimhq/authcore/internal/onetime"
	"github.com/verbatimhq/authcore/internal/rate"
	"github.com/verbatimhq/authcore/internal/security/password"
	"github.com/verbatimhq/authcore/internal/store/pg"
	"github.com/verbatimhq/authcore/internal/token"
	migrations "github.com/verbatimhq/authcore/migrations/postgres"
)

func main() {
	var (
		cfgPath  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "authcore",
		Short:         "Authentication and session security service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath, logLevel)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cfgPath, logLevel)
		},
	}

	root.AddCommand(serveCmd)
	root.AddCommand(migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig(path, level string) (*config.Config, error) {
	// .env is a dev convenience; the real environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       level,
		ServiceName: "authcore",
	})
	return cfg, nil
}

func migrate(ctx context.Context, cfgPath, level string) error {
	cfg, err := loadConfig(cfgPath, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := pg.New(ctx, pg.Config{
		DSN:             cfg.Storage.DSN,
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: config.Duration(cfg.Storage.Postgres.ConnMaxLifetime),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := migrations.Apply(ctx, store.Pool())
	if err != nil {
		return err
	}
	for _, name := range applied {
		logger.L().Info("migration applied", logger.Component("migrate"), logger.String("name", name))
	}
	if len(applied) == 0 {
		logger.L().Info("schema up to date", logger.Component("migrate"))
	}
	return nil
}

func serve(ctx context.Context, cfgPath, level string) error {
	cfg, err := loadConfig(cfgPath, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.L().With(logger.Component("serve"))

	store, err := pg.New(ctx, pg.Config{
		DSN:             cfg.Storage.DSN,
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: config.Duration(cfg.Storage.Postgres.ConnMaxLifetime),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// Cache and rate limiters share the redis connection when one is
	// configured; otherwise both fall back to in-process state.
	var (
		cacheClient cache.Client
		limiters    router.Limiters
	)
	newLimiter := func(max int, window string) rate.Limiter {
		return rate.NewMemoryLimiter(max, config.Duration(window))
	}
	if cfg.Cache.Kind == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()

		cacheClient = cache.NewRedisFromClient(rdb, cfg.Cache.Redis.Prefix)
		newLimiter = func(max int, window string) rate.Limiter {
			return rate.NewRedisLimiter(rdb, "rl:", max, config.Duration(window))
		}
	} else {
		cacheClient = cache.NewMemory()
	}
	if cfg.Rate.Enabled {
		limiters = router.Limiters{
			Credentials: newLimiter(cfg.Rate.Login.Limit, cfg.Rate.Login.Window),
			MFA:         newLimiter(cfg.Rate.MFA.Limit, cfg.Rate.MFA.Window),
			Recovery:    newLimiter(cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window),
			Token:       newLimiter(cfg.Rate.Refresh.Limit, cfg.Rate.Refresh.Window),
			OAuth:       newLimiter(cfg.Rate.OAuth.Limit, cfg.Rate.OAuth.Window),
		}
	}

	allowlist, err := rate.NewAllowlist(cfg.Rate.Allowlist)
	if err != nil {
		return fmt.Errorf("rate allowlist: %w", err)
	}

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	issuer, err := token.NewIssuer(cfg.JWT.Issuer, cfg.JWT.SigningSeed, config.Duration(cfg.JWT.AccessTTL))
	if err != nil {
		return err
	}
	refreshTTL := config.Duration(cfg.JWT.RefreshTTL)
	tokens := &token.Service{
		Issuer:     issuer,
		Sessions:   store.Sessions(),
		Users:      store.Users(),
		Cache:      cacheClient,
		RefreshTTL: refreshTTL,
	}

	var sender email.Sender
	if cfg.SMTP.Host != "" {
		smtp := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		smtp.TLSMode = cfg.SMTP.TLS
		smtp.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		sender = smtp
	} else {
		log.Warn("no SMTP host configured, mail goes to the log")
		sender = &email.LogSender{}
	}
	mailer, err := email.NewMailer(sender, cfg.Email.BaseURL)
	if err != nil {
		return err
	}

	var providers []oauth.Provider
	if cfg.Providers.Google.Enabled {
		providers = append(providers, google.New(
			cfg.Providers.Google.ClientID,
			cfg.Providers.Google.ClientSecret,
			cfg.Providers.Google.RedirectURL,
		))
	}
	if cfg.Providers.GitHub.Enabled {
		providers = append(providers, github.New(
			cfg.Providers.GitHub.ClientID,
			cfg.Providers.GitHub.ClientSecret,
			cfg.Providers.GitHub.RedirectURL,
		))
	}

	org, err := defaultOrg(ctx, store.Organizations(), cfg.Auth.DefaultOrgName)
	if err != nil {
		return fmt.Errorf("default organization: %w", err)
	}

	svc := svcauth.New(svcauth.Service{
		Users:     store.Users(),
		Orgs:      store.Organizations(),
		Tokens:    tokens,
		MFA:       &mfa.Engine{Repo: store.MFA(), Cache: cacheClient, Issuer: "authcore"},
		OneTime:   &onetime.Manager{Cache: cacheClient},
		Mailer:    mailer,
		Audit:     audit.Fanout{audit.ZapSink{}, &audit.PGSink{Pool: store.Pool()}},
		Providers: oauth.NewRegistry(providers...),
		Linker: &oauth.Linker{
			Users:        store.Users(),
			DefaultOrgID: org.ID,
			DefaultRole:  "member",
		},
		Policy: password.Policy{
			MinLength:    cfg.Security.PasswordPolicy.MinLength,
			RequireUpper: cfg.Security.PasswordPolicy.RequireUpper,
			RequireLower: cfg.Security.PasswordPolicy.RequireLower,
			RequireDigit: cfg.Security.PasswordPolicy.RequireDigit,
		},
		HashParams:   password.Default,
		VerifyTTL:    cfg.Auth.Verify.TTL,
		ResetTTL:     cfg.Auth.Reset.TTL,
		DefaultOrgID: org.ID,
		DefaultRole:  "member",
	}, cfg.Security.HashingConcurrency)

	controllers := authctrl.New(svc, helpers.CookieSettings{
		Name:     cfg.Auth.Cookie.Name,
		Domain:   cfg.Auth.Cookie.Domain,
		SameSite: cfg.Auth.Cookie.SameSite,
		Secure:   cfg.Auth.Cookie.Secure || cfg.IsProd(),
	}, refreshTTL)

	handler := router.New(router.Deps{
		Auth:      controllers,
		Tokens:    tokens,
		Limiters:  limiters,
		Allowlist: allowlist,
		Ready: func(ctx context.Context) error {
			if err := store.Pool().Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := cacheClient.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			return nil
		},
		Metrics: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sessionJanitor(gctx, store.Sessions())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// defaultOrg resolves the tenant federated signups land in, creating
// it on first boot.
func defaultOrg(ctx context.Context, orgs repository.OrganizationRepository, name string) (*repository.Organization, error) {
	org, err := orgs.GetByName(ctx, name)
	if err == nil {
		return org, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	org, err = orgs.Create(ctx, name)
	if err != nil {
		// Lost the race against another instance booting.
		if repository.IsConflict(err) {
			return orgs.GetByName(ctx, name)
		}
		return nil, err
	}
	logger.L().Info("created default organization",
		logger.Component("serve"), logger.String("name", name))
	return org, nil
}

// sessionJanitor purges expired sessions until the context ends.
func sessionJanitor(ctx context.Context, sessions repository.SessionRepository) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				logger.L().Warn("session cleanup failed",
					logger.Component("janitor"), logger.Err(err))
				continue
			}
			if n > 0 {
				logger.L().Info("expired sessions removed",
					logger.Component("janitor"), logger.Int("count", n))
			}
		}
	}
}
