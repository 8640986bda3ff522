package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct {
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

// NewMetricsHandler creates a new MetricsHandler for the metrics in gatherer.
func NewMetricsHandler(gatherer prometheus.Gatherer, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{
		gatherer: gatherer,
		logger:   logger.With().Str("component", "metrics_handler").Logger(),
	}
}

// RegisterPublicRoutes registers metrics routes that don't require authentication.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", h.Metrics())
}

// Metrics returns metrics in Prometheus exposition format.
//
//	@Summary		Prometheus metrics endpoint
//	@Description	Returns metrics in Prometheus exposition format for scraping
//	@Tags			Monitoring
//	@Produce		plain
//	@Success		200	{string}	string	"Prometheus metrics"
//	@Router			/metrics [get]
func (h *MetricsHandler) Metrics() gin.HandlerFunc {
	handler := promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{
		ErrorLog:      promLogger{h.logger},
		ErrorHandling: promhttp.ContinueOnError,
	})
	return gin.WrapH(handler)
}

// promLogger adapts zerolog to promhttp.Logger.
type promLogger struct {
	logger zerolog.Logger
}

func (l promLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
