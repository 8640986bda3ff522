// Package api provides the HTTP API for the delivery server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/activity"
	"github.com/socialhistoryservices/delivery/internal/api/handlers"
	"github.com/socialhistoryservices/delivery/internal/api/middleware"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/config"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/health"
	"github.com/socialhistoryservices/delivery/internal/metrics"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/socialhistoryservices/delivery/docs/api"
)

// maxBodyBytes caps request bodies. Bulk status updates are the largest.
const maxBodyBytes = 1 << 20

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty is only accepted outside production.
	AllowedOrigins []string
	Environment    config.Environment
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// PublicRateLimit applies per period to the unauthenticated visitor endpoints.
	PublicRateLimit int64
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{},
		Environment:       config.EnvDevelopment,
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		PublicRateLimit:   20,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	DB       *db.DB
	Service  *delivery.Service
	Sessions *auth.SessionStore
	// OIDC is nil when staff login is disabled; API keys still work.
	OIDC  *auth.OIDC
	Roles auth.RoleMap
	Feed  *activity.Feed
	// Metrics records request latencies; Gatherer is what /metrics exposes.
	Metrics  *metrics.PrometheusMetrics
	Gatherer prometheus.Gatherer
	Health   *health.Collector
	// Redis shares rate limit counters between instances. Optional.
	Redis redis.UniversalClient
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	cors, err := middleware.CORS(cfg.AllowedOrigins, cfg.Environment, logger)
	if err != nil {
		return nil, err
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	var observer middleware.HTTPObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	r.Engine.Use(middleware.RequestLogger(logger, observer))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(cors)
	r.Engine.Use(middleware.BodyLimitMiddleware(maxBodyBytes))

	rateLimiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Requests: cfg.RateLimitRequests,
		Period:   cfg.RateLimitPeriod,
		Redis:    deps.Redis,
	})
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	publicLimiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Requests: cfg.PublicRateLimit,
		Period:   cfg.RateLimitPeriod,
		Prefix:   "delivery_public",
		Redis:    deps.Redis,
	})
	if err != nil {
		return nil, err
	}

	// A nil *auth.OIDC must not become a non-nil interface.
	var oidcHealth handlers.OIDCHealthChecker
	var oidcProvider handlers.OIDCProvider
	if deps.OIDC != nil {
		oidcHealth = deps.OIDC
		oidcProvider = deps.OIDC
	}

	// Health check endpoints (no auth required)
	var collector handlers.MetricsCollector
	if deps.Health != nil {
		collector = deps.Health
	}
	healthHandler := handlers.NewHealthHandler(deps.DB, oidcHealth, collector, nil, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	if deps.Gatherer != nil {
		handlers.NewMetricsHandler(deps.Gatherer, logger).RegisterPublicRoutes(r.Engine)
	}

	// Swagger API documentation (no auth required)
	r.Engine.GET("/api/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/api/docs/doc.json"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))

	// Version endpoint (no auth required)
	handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate).RegisterPublicRoutes(r.Engine)

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(oidcProvider, deps.Sessions, deps.Roles, logger)
	authHandler.RegisterRoutes(r.Engine.Group("/auth"))

	reservationsHandler := handlers.NewReservationsHandler(deps.Service, deps.DB, logger)
	reproductionsHandler := handlers.NewReproductionsHandler(deps.Service, deps.DB, logger)

	// Visitor request forms and order page lookup (no auth required)
	public := r.Engine.Group("/api/v1/public")
	reservationsHandler.RegisterPublicRoutes(public, publicLimiter)
	reproductionsHandler.RegisterPublicRoutes(public, publicLimiter)

	// API v1 routes (session or API key required)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Sessions, auth.NewAPIKeyValidator(deps.DB, logger), logger))

	reservationsHandler.RegisterRoutes(apiV1)
	reproductionsHandler.RegisterRoutes(apiV1)
	handlers.NewHoldingsHandler(deps.Service, deps.DB, logger).RegisterRoutes(apiV1)
	handlers.NewScanHandler(deps.Service, logger).RegisterRoutes(apiV1)
	handlers.NewAPIKeysHandler(deps.DB, logger).RegisterRoutes(apiV1)
	healthHandler.RegisterRoutes(apiV1)

	if deps.Feed != nil {
		handlers.NewDeskFeedHandler(deps.Feed, logger).RegisterRoutes(apiV1)
	}

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
