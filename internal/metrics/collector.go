package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// DeskStatsSource supplies the workload figures the gauges report.
type DeskStatsSource interface {
	GetDeskStats(ctx context.Context) (*db.DeskStats, error)
}

var holdingStatuses = []models.HoldingStatus{
	models.HoldingStatusAvailable,
	models.HoldingStatusReserved,
	models.HoldingStatusInUse,
	models.HoldingStatusReturned,
}

// Collector periodically refreshes the holding and request gauges.
type Collector struct {
	source   DeskStatsSource
	metrics  *PrometheusMetrics
	interval time.Duration
	logger   zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector creates a collector refreshing m from source every interval.
func NewCollector(source DeskStatsSource, m *PrometheusMetrics, interval time.Duration, logger zerolog.Logger) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		source:   source,
		metrics:  m,
		interval: interval,
		logger:   logger.With().Str("component", "metrics_collector").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Collect refreshes the gauges once.
func (c *Collector) Collect(ctx context.Context) error {
	stats, err := c.source.GetDeskStats(ctx)
	if err != nil {
		return err
	}
	for _, s := range holdingStatuses {
		c.metrics.HoldingGauge.WithLabelValues(string(s)).Set(float64(stats.HoldingsByStatus[string(s)]))
	}
	c.metrics.RequestGauge.WithLabelValues(string(models.RequestKindReservation)).Set(float64(stats.OpenReservations))
	c.metrics.RequestGauge.WithLabelValues(string(models.RequestKindReproduction)).Set(float64(stats.OpenReproductions))
	c.metrics.HoldGauge.Set(float64(stats.HoldsPending))
	return nil
}

// Start collects immediately and then on every interval until ctx is done
// or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Collect(ctx); err != nil {
			c.logger.Error().Err(err).Msg("failed to collect desk metrics")
		}
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the collector to stop and waits for it to finish.
func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}
