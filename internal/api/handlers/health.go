package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/health"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const healthTimeout = 5 * time.Second

// HealthCheckResult represents the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

// SystemHealthResponse is the response of the system health endpoint.
type SystemHealthResponse struct {
	*health.CheckResult
	OS map[string]string `json:"os"`
}

// DatabaseHealthChecker defines the interface for database health checking.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// OIDCHealthChecker defines the interface for OIDC provider health checking.
type OIDCHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MetricsCollector gathers host and database figures for the system check.
type MetricsCollector interface {
	Collect(ctx context.Context) (*health.Metrics, error)
}

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	db        DatabaseHealthChecker
	oidc      OIDCHealthChecker
	collector MetricsCollector
	checker   *health.Checker
	logger    zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. oidc and collector may be nil.
func NewHealthHandler(db DatabaseHealthChecker, oidc OIDCHealthChecker, collector MetricsCollector, checker *health.Checker, logger zerolog.Logger) *HealthHandler {
	if checker == nil {
		checker = health.NewCheckerWithDefaults()
	}
	return &HealthHandler{
		db:        db,
		oidc:      oidc,
		collector: collector,
		checker:   checker,
		logger:    logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers health check routes that don't require authentication.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	group := r.Group("/health")
	{
		group.GET("", h.Overall)
		group.GET("/db", h.Database)
		group.GET("/oidc", h.OIDC)
	}
}

// RegisterRoutes registers the detailed system check, which exposes host
// figures and is kept behind authentication.
func (h *HealthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health/system", h.System)
}

// Overall returns the overall server health status.
//
//	@Summary		Health check
//	@Tags			Monitoring
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health [get]
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	response := &HealthResponse{
		Status: HealthStatusHealthy,
		Checks: map[string]*HealthCheckResult{
			"database": h.checkDatabase(ctx),
			"oidc":     h.checkOIDC(ctx),
		},
	}

	for _, check := range response.Checks {
		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
	}

	c.JSON(http.StatusOK, response)
}

// Database returns the database health status.
// GET /health/db
func (h *HealthHandler) Database(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	h.single(c, "database", h.checkDatabase(ctx))
}

// OIDC returns the OIDC provider health status.
// GET /health/oidc
func (h *HealthHandler) OIDC(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	h.single(c, "oidc", h.checkOIDC(ctx))
}

func (h *HealthHandler) single(c *gin.Context, name string, result *HealthCheckResult) {
	response := &HealthResponse{
		Status: result.Status,
		Checks: map[string]*HealthCheckResult{name: result},
	}
	if result.Status == HealthStatusUnhealthy {
		response.Error = result.Error
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// System evaluates host and database figures against the health thresholds.
// A critical result answers 503.
// GET /api/v1/health/system
func (h *HealthHandler) System(c *gin.Context) {
	if h.collector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "system metrics not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	m, err := h.collector.Collect(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("system metrics incomplete")
	}

	result := h.checker.EvaluateMetrics(m)
	status := http.StatusOK
	if result.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, SystemHealthResponse{CheckResult: result, OS: health.GetOSInfo()})
}

// checkDatabase performs a database health check.
func (h *HealthHandler) checkDatabase(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}

	if h.db == nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database not configured"
		result.Duration = time.Since(start).String()
		return result
	}

	err := h.db.Ping(ctx)
	result.Duration = time.Since(start).String()
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database ping failed"
		h.logger.Warn().Err(err).Msg("database health check failed")
		return result
	}

	result.Details = h.db.Health()
	return result
}

// checkOIDC performs an OIDC provider health check. An unconfigured
// provider is healthy.
func (h *HealthHandler) checkOIDC(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}

	if h.oidc == nil {
		result.Details = map[string]any{"configured": false}
		result.Duration = time.Since(start).String()
		return result
	}

	err := h.oidc.HealthCheck(ctx)
	result.Duration = time.Since(start).String()
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "OIDC provider unreachable"
		h.logger.Warn().Err(err).Msg("OIDC health check failed")
		return result
	}

	result.Details = map[string]any{"configured": true}
	return result
}
