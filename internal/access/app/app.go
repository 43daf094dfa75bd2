package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/ledgerdrop/internal/access/http"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/mail"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/telemetry"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

// ProductName appears in mail subjects and bodies.
const ProductName = "Ledgerdrop"

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application wires the access service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	keys    SessionKeys
	hasher  *cryptox.PasswordHasher
	metrics *telemetry.Metrics

	tokenService        *service.TokenService
	sessionService      *service.SessionService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds the application. Migrations are applied
// before it returns.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:     cfg,
		logger:  NewLogger(cfg),
		metrics: telemetry.New(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := LoadSessionKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keys = keys

	hasher, err := LoadPasswordHasher(cfg)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.hasher = hasher

	notifier, err := app.initMail()
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices(notifier)
	app.initHTTP()

	return app, nil
}

// NewLogger builds the structured logger for cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "access-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("access service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.db.Close()
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down access service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("access service stopped")
	return nil
}

// Handler exposes the HTTP router, mainly for tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

func (app *Application) initDatabase() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := OpenMigratedStore(ctx, app.cfg)
	if err != nil {
		return err
	}
	app.db = db

	app.logger.Info("database ready", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initMail picks the SMTP dispatcher when a host is configured and falls
// back to logging messages otherwise.
func (app *Application) initMail() (*mail.Notifier, error) {
	var dispatcher mail.Dispatcher
	if app.cfg.SMTP.Host != "" {
		smtp, err := mail.NewSMTPDispatcher(app.cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("failed to configure smtp: %w", err)
		}
		dispatcher = smtp
		app.logger.Info("smtp delivery enabled", "host", app.cfg.SMTP.Host, "port", app.cfg.SMTP.Port)
	} else {
		dispatcher = mail.LogDispatcher{Logger: app.logger}
		app.logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
	}

	return mail.NewNotifier(dispatcher, ProductName)
}

func (app *Application) initServices(notifier service.Notifier) {
	app.sessionService = &service.SessionService{
		Store:    app.db,
		Signer:   app.keys.Signer,
		Verifier: app.keys.Verifier,
		Issuer:   app.cfg.Issuer,
		TTL:      app.cfg.SessionTTL,
		Hasher:   app.hasher,
		Metrics:  app.metrics,
	}

	if app.cfg.ExposeResetLinks {
		app.logger.Warn("reset links are returned by the API; never enable this in production")
	}
	app.tokenService = &service.TokenService{
		Store:     app.db,
		Generator: service.RandomSecrets{},
		Notifier:  notifier,
		Sessions:  app.sessionService,
		Hasher:    app.hasher,
		Metrics:   app.metrics,
		Config: service.TokenConfig{
			PublicOrigin:     app.cfg.PublicOrigin,
			ResetTTL:         app.cfg.ResetTTL,
			InviteTTL:        app.cfg.InviteTTL,
			ExposeResetLinks: app.cfg.ExposeResetLinks,
			DeliveryTimeout:  app.cfg.DeliveryTimeout,
		},
	}

	app.bootstrapService = &service.BootstrapService{
		Store:  app.db,
		Token:  app.cfg.BootstrapToken,
		Hasher: app.hasher,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.TokenRetention,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.SessionService = app.sessionService
	router.BootstrapService = app.bootstrapService
	router.MetricsHandler = app.metrics.Handler()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
