package metrics

// Package metrics exposes the daemon's Prometheus instrumentation. The
// registry is local so tests can create isolated instances.

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	UploadsTotal   prometheus.Counter
	UploadFailures prometheus.Counter
	UploadedBytes  prometheus.Counter
	PrunedFiles    prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vlab",
		Name:      "uploads_total",
		Help:      "Validation videos uploaded successfully.",
	})
	m.UploadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vlab",
		Name:      "upload_failures_total",
		Help:      "Upload attempts that failed.",
	})
	m.UploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vlab",
		Name:      "uploaded_bytes_total",
		Help:      "Total bytes of footage uploaded.",
	})
	m.PrunedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vlab",
		Name:      "pruned_files_total",
		Help:      "Local footage files deleted by the pruner.",
	})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vlab",
		Name:      "upload_queue_depth",
		Help:      "Videos waiting in the upload queue.",
	})

	m.registry.MustRegister(
		m.UploadsTotal,
		m.UploadFailures,
		m.UploadedBytes,
		m.PrunedFiles,
		m.QueueDepth,
	)
	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
