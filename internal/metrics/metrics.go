// Package metrics exposes the server's Prometheus collectors on a private
// registry so tests can create independent instances.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "jkh"

// Metrics holds the collectors for HTTP, store, event and backup activity.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	events     *prometheus.CounterVec
	sseClients prometheus.Gauge

	backups      *prometheus.CounterVec
	lastBackupAt prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	m.storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations by outcome",
		},
		[]string{"op", "status"},
	)

	m.storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of store operations",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"op"},
	)

	m.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of change events published by topic and outcome",
		},
		[]string{"topic", "status"},
	)

	m.sseClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Current number of connected change-stream clients",
		},
	)

	m.backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backup exports by destination and outcome",
		},
		[]string{"destination", "status"},
	)

	m.lastBackupAt = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_timestamp_seconds",
			Help:      "Unix time of the last successful backup export",
		},
	)

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.storeOps,
		m.storeDuration,
		m.events,
		m.sseClients,
		m.backups,
		m.lastBackupAt,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sql.ErrNoRows):
		return "not_found"
	default:
		return "error"
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveStore records one store operation. sql.ErrNoRows counts as not_found.
func (m *Metrics) ObserveStore(op string, d time.Duration, err error) {
	m.storeOps.WithLabelValues(op, status(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// EventPublished records the outcome of publishing one change event.
func (m *Metrics) EventPublished(topic string, err error) {
	m.events.WithLabelValues(topic, status(err)).Inc()
}

func (m *Metrics) SSEConnected()    { m.sseClients.Inc() }
func (m *Metrics) SSEDisconnected() { m.sseClients.Dec() }

// BackupCompleted records one backup export to the named destination.
func (m *Metrics) BackupCompleted(destination string, at time.Time, err error) {
	m.backups.WithLabelValues(destination, status(err)).Inc()
	if err == nil {
		m.lastBackupAt.Set(float64(at.Unix()))
	}
}

// Registry returns the Prometheus registry for HTTP handler setup.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
