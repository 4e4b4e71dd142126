package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agp-analyzer/backend/internal/models"
)

// Metrics holds the service's Prometheus collectors. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry      *prometheus.Registry
	parses        *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	analyses      *prometheus.CounterVec
	uploads       prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agp",
			Name:      "log_parses_total",
			Help:      "Log parses by log kind and outcome.",
		}, []string{"kind", "outcome"}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agp",
			Name:      "log_parse_duration_seconds",
			Help:      "Time spent parsing a log file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agp",
			Name:      "analysis_requests_total",
			Help:      "Analysis and planning requests by kind.",
		}, []string{"analysis"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agp",
			Name:      "uploads_total",
			Help:      "Log files stored.",
		}),
	}
	m.registry.MustRegister(m.parses, m.parseDuration, m.analyses, m.uploads)
	return m
}

// ObserveParse records one finished parse. Its signature matches
// session.ParseObserver.
func (m *Metrics) ObserveParse(kind models.LogKind, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.parses.WithLabelValues(k, outcome).Inc()
	m.parseDuration.WithLabelValues(k).Observe(elapsed.Seconds())
}

// CountAnalysis records one analysis request.
func (m *Metrics) CountAnalysis(name string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(name).Inc()
}

// CountUpload records one stored file.
func (m *Metrics) CountUpload() {
	if m == nil {
		return
	}
	m.uploads.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
