package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/account"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/encounter"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/migrations"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func emailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPEnabled() {
		return notification.NewSMTPEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  10 * time.Second,
		})
	}
	return notification.LogEmailSender{Logger: logger.With().Str("component", "email").Logger()}
}

func reminderConfig(cfg *config.Config) scheduling.ReminderConfig {
	return scheduling.ReminderConfig{
		Interval:     cfg.ReminderInterval,
		StartupDelay: cfg.ReminderStartupDelay,
		Window:       cfg.ReminderWindow,
	}
}

func bookingRules(cfg *config.Config) scheduling.Rules {
	rules := scheduling.DefaultRules()
	if cfg.BookingLeadTime > 0 {
		rules.LeadTime = cfg.BookingLeadTime
	}
	if cfg.BookingConflictWindow > 0 {
		rules.ConflictWindow = cfg.BookingConflictWindow
	}
	return rules
}

// newEcho installs the error handler and the global middleware chain.
// revocations may be nil.
func newEcho(cfg *config.Config, logger zerolog.Logger, revocations *auth.RevocationList) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger, cfg.IsDev())

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	jwtCfg := jwtConfig(cfg)
	jwtCfg.Revocations = revocations
	e.Use(auth.JWTMiddleware(jwtCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	metrics.RegisterPoolStats(pool)

	tx := db.NewTransactor(pool)
	migrator := db.NewMigrator(pool, migrations.FS)

	revocations := auth.NewRevocationList(cfg.JWTTTL)
	defer revocations.Close()

	e := newEcho(cfg, logger, revocations)
	e.GET("/health/db", db.HealthHandler(pool, migrator))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Accounts
	tokens := auth.NewTokenIssuer(jwtConfig(cfg), cfg.JWTTTL)
	accountSvc := account.NewService(account.NewAccountRepoPG(pool), account.NewProfileLookupPG(pool),
		tokens, logger.With().Str("domain", "account").Logger())
	accountSvc.SetRevoker(revocations)
	account.NewHandler(accountSvc).RegisterRoutes(apiV1)
	auth.RegisterRevocationRoutes(apiV1, revocations)

	// Patients, doctors, specialties
	identitySvc := identity.NewService(
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		identity.NewSpecialtyRepoPG(pool),
		accountSvc, tx, logger.With().Str("domain", "identity").Logger())
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.SetSessionIssuer(tokens)
	identityHandler.RegisterRoutes(apiV1)

	// Drugs and stock
	medicationSvc := medication.NewService(medication.NewDrugRepoPG(pool), medication.NewStockRepoPG(pool),
		tx, logger.With().Str("domain", "medication").Logger())
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)

	// Appointments
	appointments := scheduling.NewAppointmentRepoPG(pool)
	schedulingSvc := scheduling.NewService(appointments, scheduling.NewDirectoryPG(pool), tx,
		bookingRules(cfg), logger.With().Str("domain", "scheduling").Logger())
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	// Invoices and encounters
	invoices := billing.NewRepoPG(pool)
	billing.NewHandler(billing.NewService(invoices, logger.With().Str("domain", "billing").Logger())).RegisterRoutes(apiV1)
	encounterSvc := encounter.NewService(encounter.NewRepoPG(pool), encounter.NewClinicPG(pool), invoices,
		tx, logger.With().Str("domain", "encounter").Logger())
	encounter.NewHandler(encounterSvc).RegisterRoutes(apiV1)

	// Reports
	reporting.NewHandler(reporting.NewPGStore(pool)).RegisterRoutes(apiV1)

	// Reminder worker
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if cfg.ReminderEnabled {
		workerLogger := logger.With().Str("component", "reminder").Logger()
		notifier := notification.NewManager(emailSender(cfg, logger), notification.NewTemplateEngine(), workerLogger)
		worker := scheduling.NewReminderWorker(appointments, notifier, reminderConfig(cfg), workerLogger)
		go worker.Start(workerCtx)
		logger.Info().Dur("interval", cfg.ReminderInterval).Bool("smtp", cfg.SMTPEnabled()).Msg("reminder worker started")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
