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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/tenantadmin/internal/auth/http"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/metrics"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/service"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store/drivers/mongo"
	"github.com/aussiebroadwan/tenantadmin/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
	"github.com/aussiebroadwan/tenantadmin/pkg/jwtx"
	"github.com/aussiebroadwan/tenantadmin/pkg/slogx"
)

// BuildVersion is overridden with -ldflags "-X .../app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application owns the auth service and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	tokenService        *service.TokenService
	userService         *service.UserService
	mfaService          *service.MFAService
	rolesService        *service.RolesService
	settingsService     *service.SettingsService
	auditService        *service.AuditService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New connects the store and builds the services and router. Nothing is
// served until Run.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tenantadmin-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
	ctx = slogx.WithContext(ctx, app.logger)

	for _, key := range cfg.Generated {
		app.logger.Warn("secret not configured, generated one for this run", "key", key)
	}

	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("load pepper: %w", err)
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initRedis(ctx); err != nil {
		app.closeDatabase()
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(app.registry)

	if err := app.initServices(); err != nil {
		app.closeConnections()
		return nil, err
	}
	if err := app.bootstrap(ctx); err != nil {
		app.closeConnections()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run serves until SIGINT or SIGTERM, then shuts down.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion, "store", app.cfg.StoreDriver)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeConnections()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

// Shutdown drains in-flight requests, stops housekeeping and closes the
// connections.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase(ctx context.Context) error {
	switch app.cfg.StoreDriver {
	case DriverMongo:
		db, err := mongo.Connect(ctx, app.cfg.MongoURI, app.cfg.MongoDatabase, app.cfg.MongoTimeout)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		app.db = db
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		app.db = db
	}

	if err := app.db.ApplyMigrations(); err != nil {
		app.closeDatabase()
		return fmt.Errorf("apply migrations: %w", err)
	}
	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) closeDatabase() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
	}
}

func (app *Application) closeConnections() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	app.closeDatabase()
}

// initRedis connects the shared rate limit backend. Without REDIS_ADDR each
// process limits on its own.
func (app *Application) initRedis(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}
	app.redis = client
	app.logger.Info("rate limits shared through redis", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initServices() error {
	opts := jwtx.VerifyOptions{Issuer: app.cfg.Issuer, Leeway: 5 * time.Second}

	accessSigner, err := jwtx.NewHS256Signer([]byte(app.cfg.AccessSecret))
	if err != nil {
		return fmt.Errorf("access signer: %w", err)
	}
	accessVerifier, err := jwtx.NewHS256Verifier([]byte(app.cfg.AccessSecret), opts)
	if err != nil {
		return fmt.Errorf("access verifier: %w", err)
	}
	refreshSigner, err := jwtx.NewHS256Signer([]byte(app.cfg.RefreshSecret))
	if err != nil {
		return fmt.Errorf("refresh signer: %w", err)
	}
	refreshVerifier, err := jwtx.NewHS256Verifier([]byte(app.cfg.RefreshSecret), opts)
	if err != nil {
		return fmt.Errorf("refresh verifier: %w", err)
	}
	sealer, err := cryptox.NewSealer([]byte(app.cfg.MasterKey))
	if err != nil {
		return fmt.Errorf("mfa sealer: %w", err)
	}

	app.auditService = &service.AuditService{Store: app.db}
	app.tokenService = &service.TokenService{
		Store:           app.db,
		AccessSigner:    accessSigner,
		AccessVerifier:  accessVerifier,
		RefreshSigner:   refreshSigner,
		RefreshVerifier: refreshVerifier,
		Issuer:          app.cfg.Issuer,
		AccessTTL:       app.cfg.AccessTTL,
		RefreshTTL:      app.cfg.RefreshTTL,
		RotateRefresh:   app.cfg.RotateRefresh,
		Metrics:         app.metrics,
	}
	app.userService = &service.UserService{Store: app.db, Audit: app.auditService, Metrics: app.metrics}
	app.mfaService = &service.MFAService{
		Store:   app.db,
		Audit:   app.auditService,
		Sealer:  sealer,
		Issuer:  app.cfg.Issuer,
		Metrics: app.metrics,
	}
	app.rolesService = &service.RolesService{Store: app.db, Audit: app.auditService}
	app.settingsService = &service.SettingsService{Store: app.db, Audit: app.auditService}

	app.housekeepingService = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
	app.housekeepingService.AuditRetention = app.cfg.AuditRetention
	app.housekeepingService.Metrics = app.metrics
	return nil
}

// bootstrap seeds the built-in roles and, on an empty user table, the admin
// from ADMIN_USERNAME and ADMIN_PASSWORD.
func (app *Application) bootstrap(ctx context.Context) error {
	bs := &service.BootstrapService{Store: app.db}
	_, err := bs.Bootstrap(ctx, domain.BootstrapData{
		AdminUsername: app.cfg.AdminUsername,
		AdminPassword: app.cfg.AdminPassword,
		AdminEmail:    app.cfg.AdminEmail,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

func (app *Application) initHTTP() {
	cfg := httpapi.RouterConfig{
		BuildVersion:   BuildVersion,
		Cookies:        httpapi.CookieConfig{Secure: app.cfg.CookieSecure, Domain: app.cfg.CookieDomain},
		EnforceMFA:     app.cfg.EnforceMFA,
		CORSOrigins:    app.cfg.CORSOrigins(),
		Gatherer:       app.registry,
		TrustedProxies: app.cfg.TrustedProxyPrefixes,
	}
	if app.redis != nil {
		client := app.redis
		cfg.NewLimiter = func(name string, c httpx.RateLimitConfig) httpx.Limiter {
			return httpx.NewRedisLimiter(client, name, c)
		}
	}

	router := httpapi.NewRouter(cfg, app.db, app.logger)
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.MFAService = app.mfaService
	router.RolesService = app.rolesService
	router.SettingsService = app.settingsService
	router.AuditService = app.auditService
	router.Metrics = app.metrics
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
