package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	httpapi "github.com/aussiebroadwan/marquee/internal/auth/http"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	redisstore "github.com/aussiebroadwan/marquee/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/marquee/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     *sqlite.Store
	rdb    *goredis.Client // nil without redis
	amqp   *audit.AMQPEmitter
	hasher *cryptox.Hasher
	cipher *cryptox.SecretCipher
	issuer *jwtx.SessionIssuer
	guard  guard.Limiter
	audit  audit.Emitter

	handshakes store.Handshakes // nil means the database table

	// Services
	sessions            *service.SessionService
	cache               *service.AccountCache
	mfa                 *service.MFAService
	loginService        *service.LoginService
	accountService      *service.AccountService
	adminService        *service.AdminService
	webauthnService     *service.WebAuthnService  // Optional
	handshakeManager    *service.HandshakeManager // Optional
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	logger, err := slogx.New(slogx.Config{
		Service:   "marquee-auth",
		Version:   BuildVersion,
		Env:       cfg.Env,
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AuthDebug: cfg.Logging.AuthDebug,
	})
	if err != nil {
		return nil, err
	}
	app := &Application{cfg: cfg, logger: logger}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		app.closeBackends()
		return nil, err
	}
	if err := app.initBackends(context.Background()); err != nil {
		app.closeBackends()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if err := app.adminService.EnsureAdmin(context.Background()); errors.Is(err, service.ErrNoAdmin) {
		app.logger.Warn("no admin account exists; create one with: marquectl account create --admin <username>")
	} else if err != nil {
		app.logger.Error("admin check failed", "error", err)
	}

	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Server.Port,
		"version", BuildVersion,
		"base_url", app.cfg.Server.BaseURL,
		"providers", app.cfg.ProviderNames(),
		"webauthn", app.webauthnService != nil,
		"redis", app.rdb != nil,
		"amqp_audit", app.amqp != nil,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownGrace)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		app.logger.Error("error closing backends", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.amqp != nil {
		errs = append(errs, app.amqp.Close())
	}
	if app.rdb != nil {
		errs = append(errs, app.rdb.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

// OpenDatabase opens the sqlite file in WAL mode and applies migrations.
func OpenDatabase(file string) (*sqlite.Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", file)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := OpenDatabase(app.cfg.Database.File)
	if err != nil {
		return err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully")
	return nil
}

// NewHasher loads the pepper and builds the password hasher.
func NewHasher(cfg Config) (*cryptox.Hasher, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.Keys.PepperFile)
	if err != nil {
		return nil, err
	}
	return cryptox.NewHasher(cryptox.DefaultScryptParams, pepper)
}

// initCrypto builds the hasher, secret cipher and session issuer.
func (app *Application) initCrypto() error {
	hasher, err := NewHasher(app.cfg)
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	app.hasher = hasher

	kr, err := cryptox.ParseKeyring(app.cfg.Keys.Secrets)
	if err != nil {
		return fmt.Errorf("keys.secrets: %w", err)
	}
	if app.cipher, err = cryptox.NewSecretCipher(kr); err != nil {
		return fmt.Errorf("keys.secrets: %w", err)
	}

	keys, err := app.cfg.SessionKeys()
	if err != nil {
		return err
	}
	app.issuer, err = jwtx.NewSessionIssuer(keys, jwtx.WithSessionIssuer(app.cfg.Session.Issuer))
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}
	app.logger.Info("session keys loaded", "signing_kid", app.issuer.KID(), "keys", len(keys))
	return nil
}

// initBackends picks in-process or shared state for the guard and handshakes,
// and the audit sinks.
func (app *Application) initBackends(ctx context.Context) error {
	if app.cfg.Redis.URL != "" {
		rdb, err := redisstore.Open(ctx, app.cfg.Redis.URL)
		if err != nil {
			return err
		}
		app.rdb = rdb
		app.guard = guard.NewRedis(rdb, guard.WithPrefix(app.cfg.Redis.KeyPrefix+"guard:"))
		app.handshakes = redisstore.NewHandshakeStore(rdb, app.cfg.Redis.KeyPrefix+"handshake:")
	} else {
		app.guard = guard.NewMemory()
	}

	sinks := audit.Multi{audit.LogEmitter{}}
	if app.cfg.AMQP.URL != "" {
		app.amqp = audit.NewAMQPEmitter(app.cfg.AMQP.URL, app.cfg.AMQP.Queue)
		sinks = append(sinks, app.amqp)
	}
	app.audit = sinks
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	cfg := app.cfg

	app.sessions = &service.SessionService{
		Store:         app.db,
		Issuer:        app.issuer,
		TTL:           cfg.Session.TTL,
		TouchInterval: cfg.Session.TouchInterval,
	}
	app.cache = service.NewAccountCache(app.db, cfg.Session.CacheTTL)
	app.mfa = &service.MFAService{
		Store:       app.db,
		Sessions:    app.sessions,
		Cipher:      app.cipher,
		Guard:       app.guard,
		Lockout:     cfg.Guard.MFALockout.Policy(),
		Audit:       app.audit,
		Issuer:      cfg.MFA.Issuer,
		Skew:        cfg.MFA.Skew,
		MaxAttempts: cfg.MFA.MaxAttempts,
		SessionTTL:  cfg.MFA.SessionTTL,
	}
	app.loginService = &service.LoginService{
		Store:   app.db,
		Hasher:  app.hasher,
		Guard:   app.guard,
		Lockout: cfg.Guard.LoginLockout.Policy(),
		MFA:     app.mfa,
		Audit:   app.audit,
	}
	app.accountService = &service.AccountService{
		Store:    app.db,
		Hasher:   app.hasher,
		Sessions: app.sessions,
		MFA:      app.mfa,
		Cache:    app.cache,
		Audit:    app.audit,
	}
	app.adminService = &service.AdminService{
		Store:    app.db,
		Sessions: app.sessions,
		Cache:    app.cache,
		Audit:    app.audit,
	}

	if cfg.WebAuthn.RPID != "" {
		wa, err := service.NewWebAuthn(service.WebAuthnConfig{
			RPID:          cfg.WebAuthn.RPID,
			RPDisplayName: cfg.WebAuthn.RPName,
			RPOrigins:     cfg.WebAuthn.Origins,
		})
		if err != nil {
			return err
		}
		app.webauthnService = &service.WebAuthnService{
			Store:        app.db,
			WebAuthn:     wa,
			MFA:          app.mfa,
			Audit:        app.audit,
			ChallengeTTL: cfg.WebAuthn.ChallengeTTL,
		}
	}

	if len(cfg.Providers) > 0 {
		client := &http.Client{Timeout: cfg.SSO.ProviderTimeout}
		discovery := service.NewDiscoveryCache(client, cfg.SSO.DiscoveryTTL)
		providers := make(map[string]service.ProviderAdapter, len(cfg.Providers))
		for _, p := range cfg.Providers {
			adapter, err := service.NewProvider(p.service(), discovery, cfg.CallbackURL())
			if err != nil {
				return err
			}
			providers[p.Name] = adapter
		}
		app.handshakeManager = &service.HandshakeManager{
			Store:       app.db,
			Handshakes:  app.handshakes,
			Providers:   providers,
			MFA:         app.mfa,
			Cipher:      app.cipher,
			Audit:       app.audit,
			CallbackURL: cfg.CallbackURL(),
			HTTPClient:  client,
		}
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		cfg.Housekeeping.Interval,
	)
	app.housekeepingService.Handshakes = app.handshakes
	if mem, ok := app.guard.(*guard.Memory); ok {
		app.housekeepingService.Limiter = mem
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	cfg := app.cfg
	cookies := httpx.Cookies{Domain: cfg.Cookies.Domain, Secure: cfg.Cookies.Secure}

	// Validate already checked the base URL parses
	csrf, _ := httpx.NewCSRFGuard(cfg.Server.BaseURL, cookies)

	router := httpapi.NewRouter(BuildVersion, app.db, csrf, app.logger)

	// Wire services to router
	router.Gateway = &service.Gateway{Sessions: app.sessions, Accounts: app.cache}
	router.Login = app.loginService
	router.MFA = app.mfa
	router.Accounts = app.accountService
	router.Admin = app.adminService
	router.WebAuthn = app.webauthnService
	router.Handshakes = app.handshakeManager

	router.Cookies = cookies
	router.Guard = app.guard
	router.SSORate = cfg.Guard.SSORate.Policy()
	router.WebAuthnRate = cfg.Guard.WebAuthnRate.Policy()
	router.Throttle = httpapi.Throttles{
		Strict:   cfg.Throttle.Strict,
		Moderate: cfg.Throttle.Moderate,
		Public:   cfg.Throttle.Public,
	}
	router.TrustProxy = cfg.Server.TrustProxy
	if app.rdb != nil {
		router.Redis = redisPinger{app.rdb}
	}
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// redisPinger adapts go-redis to the readiness check.
type redisPinger struct {
	rdb *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
