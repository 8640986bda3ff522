// Package main is the entrypoint for the delivery server.
//
// @title           Delivery API
// @version         1.0
// @description     Reading room delivery: reservations, reproductions and the holdings they claim.
//
// @contact.name   Reading Room Support
// @contact.url    https://github.com/socialhistoryservices/delivery
//
// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT
//
// @host      localhost:8080
// @BasePath  /
//
// @securityDefinitions.apikey SessionAuth
// @in cookie
// @name delivery_session
// @description Session cookie authentication (for staff)
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Scanner API key authentication. Use format: Bearer dlv_xxx
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/activity"
	"github.com/socialhistoryservices/delivery/internal/api"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/config"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/health"
	"github.com/socialhistoryservices/delivery/internal/maintenance"
	"github.com/socialhistoryservices/delivery/internal/metrics"
	"github.com/socialhistoryservices/delivery/internal/notifications"
	"github.com/socialhistoryservices/delivery/internal/storage"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A missing .env is fine; the environment may come from the service manager.
	_ = godotenv.Load()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting delivery server")

	// Load configuration
	cfg := config.LoadServerConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	// Connect to database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Staff roles and mail subjects
	roles := auth.DefaultRoleMap()
	var mailSubjects map[string]string
	if cfg.RoleFile != "" {
		rf, err := config.LoadRoleFile(cfg.RoleFile)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load role file")
			return 1
		}
		if roles, err = auth.NewRoleMap(rf.Groups); err != nil {
			logger.Error().Err(err).Str("file", cfg.RoleFile).Msg("Invalid role file")
			return 1
		}
		mailSubjects = rf.MailSubjects
	}

	// Initialize session store
	isSecure := cfg.Environment == config.EnvProduction
	sessionCfg := auth.DefaultSessionConfig([]byte(cfg.SessionSecret), isSecure)
	sessionCfg.MaxAge = cfg.SessionMaxAge
	sessions, err := auth.NewSessionStore(sessionCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize session store")
		return 1
	}

	var oidcProvider *auth.OIDC
	if cfg.OIDCEnabled() {
		oidcCfg := auth.DefaultOIDCConfig(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
		oidcProvider, err = auth.NewOIDC(ctx, oidcCfg, logger)
		if err != nil {
			logger.Error().Err(err).Str("issuer", cfg.OIDCIssuer).Msg("Failed to initialize OIDC provider")
			return 1
		}
		logger.Info().Str("issuer", cfg.OIDCIssuer).Msg("OIDC provider initialized")
	} else {
		logger.Warn().Msg("OIDC not configured - only API keys can authenticate")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := metrics.NewPrometheusMetrics(registry)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	// Live desk feed
	feedCfg := activity.DefaultConfig()
	feedCfg.AllowedOrigins = cfg.CORSOrigins
	feed := activity.NewFeed(feedCfg, logger)
	feed.Start()
	defer feed.Stop()

	opts := []delivery.Option{
		delivery.WithPublisher(feed),
		delivery.WithRecorder(promMetrics),
	}

	if cfg.SMTP.Host != "" {
		mailer, err := notifications.NewEmailService(notifications.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			TLS:      cfg.SMTP.UseTLS,
		}, cfg.BaseURL, mailSubjects, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize mail")
			return 1
		}
		opts = append(opts, delivery.WithNotifier(mailer))
	} else {
		logger.Warn().Msg("SMTP_HOST not set - mails are disabled")
	}

	if cfg.S3.Bucket != "" {
		signer, err := storage.NewS3Signer(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			LinkTTL:         cfg.S3.LinkTTL,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize S3 download links")
			return 1
		}
		opts = append(opts, delivery.WithLinkSigner(signer))
	} else {
		opts = append(opts, delivery.WithLinkSigner(storage.OrderPageSigner{BaseURL: cfg.BaseURL}))
	}

	service := delivery.NewService(database, logger, opts...)

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid REDIS_URL")
			return 1
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis")
			return 1
		}
		redisClient = client
		logger.Info().Msg("Rate limits shared through Redis")
	}

	routerCfg := api.Config{
		AllowedOrigins:    cfg.CORSOrigins,
		Environment:       cfg.Environment,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		PublicRateLimit:   max(cfg.RateLimitRequests/5, 1),
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}
	router, err := api.NewRouter(routerCfg, api.Dependencies{
		DB:       database,
		Service:  service,
		Sessions: sessions,
		OIDC:     oidcProvider,
		Roles:    roles,
		Feed:     feed,
		Metrics:  promMetrics,
		Gatherer: registry,
		Health:   health.NewCollector(database, ""),
		Redis:    redisClient,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	// Desk gauges
	statsCollector := metrics.NewCollector(database, promMetrics, time.Minute, logger)
	statsCollector.Start(ctx)
	defer statsCollector.Stop()

	// Payment maintenance
	payments := maintenance.NewPaymentScheduler(service, maintenance.PaymentConfig{
		Schedule:     cfg.MaintenanceSchedule,
		MaxDays:      cfg.ReproductionMaxDaysPayment,
		ReminderDays: cfg.ReproductionReminderDays,
	}, logger)
	if err := payments.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start payment scheduler")
		return 1
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("Shutting down after server failure")
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	select {
	case <-payments.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Payment job still running at shutdown")
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
