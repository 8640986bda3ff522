// Package metrics exposes Prometheus metrics for the delivery service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/socialhistoryservices/delivery/internal/models"
)

const namespace = "delivery"

// PrometheusMetrics holds the service's Prometheus collectors. It implements
// delivery.Recorder.
type PrometheusMetrics struct {
	TransitionCounter    *prometheus.CounterVec
	HoldingChangeCounter *prometheus.CounterVec
	ScanCounter          *prometheus.CounterVec
	NotificationCounter  *prometheus.CounterVec
	ConflictCounter      *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec

	HoldingGauge *prometheus.GaugeVec
	RequestGauge *prometheus.GaugeVec
	HoldGauge    prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		TransitionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Request status changes by request kind and target status.",
		}, []string{"kind", "from", "to"}),
		HoldingChangeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holding_status_changes_total",
			Help:      "Committed holding status changes.",
		}, []string{"from", "to"}),
		ScanCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Barcode scans by outcome.",
		}, []string{"outcome"}),
		NotificationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Requester mails by name and result.",
		}, []string{"name", "result"}),
		ConflictCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Rejected operations by reason.",
		}, []string{"reason"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		HoldingGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holdings",
			Help:      "Holdings by status.",
		}, []string{"status"}),
		RequestGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_requests",
			Help:      "Requests that still claim holdings, by kind.",
		}, []string{"kind"}),
		HoldGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holds_pending",
			Help:      "Line items on hold waiting for their holding.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.TransitionCounter, m.HoldingChangeCounter, m.ScanCounter,
		m.NotificationCounter, m.ConflictCounter, m.HTTPDuration,
		m.HoldingGauge, m.RequestGauge, m.HoldGauge,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// RecordTransition counts a request status change.
func (m *PrometheusMetrics) RecordTransition(kind models.RequestKind, from, to string) {
	m.TransitionCounter.WithLabelValues(string(kind), from, to).Inc()
}

// RecordHoldingChange counts a committed holding status change.
func (m *PrometheusMetrics) RecordHoldingChange(from, to models.HoldingStatus) {
	m.HoldingChangeCounter.WithLabelValues(string(from), string(to)).Inc()
}

// RecordScan counts a scan by outcome.
func (m *PrometheusMetrics) RecordScan(outcome string) {
	m.ScanCounter.WithLabelValues(outcome).Inc()
}

// RecordNotification counts a sent or failed mail.
func (m *PrometheusMetrics) RecordNotification(name string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationCounter.WithLabelValues(name, result).Inc()
}

// RecordConflict counts an operation rejected because of competing claims.
func (m *PrometheusMetrics) RecordConflict(reason string) {
	m.ConflictCounter.WithLabelValues(reason).Inc()
}

// ObserveHTTP records the latency of one HTTP request.
func (m *PrometheusMetrics) ObserveHTTP(method, route string, status int, seconds float64) {
	m.HTTPDuration.WithLabelValues(method, route, fmt.Sprint(status)).Observe(seconds)
}
