// Package metrics exports reminder-engine metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter records engine metrics. A nil *Exporter is valid and records
// nothing, so components can be built without metrics in tests.
type Exporter struct {
	registry *prometheus.Registry

	// Resolver
	cacheLookups   *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	remoteRequests *prometheus.CounterVec

	// Registry
	registrations  *prometheus.CounterVec
	evictions      prometheus.Counter
	activeTriggers prometheus.Gauge
	monitoring     prometheus.Gauge

	// Orchestrator
	remindersCreated *prometheus.CounterVec
	triggerEvents    *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}
}

// NewExporter creates an exporter and registers its collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "resolver",
			Name:      "cache_lookups_total",
			Help:      "Resolver cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
	e.remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "geominder",
			Subsystem: "resolver",
			Name:      "remote_latency_seconds",
			Help:      "Latency of geocoding and nearby-search calls",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"service"},
	)
	e.remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "resolver",
			Name:      "remote_requests_total",
			Help:      "Geocoding and nearby-search calls by outcome code",
		},
		[]string{"service", "code"},
	)

	e.registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "geofence",
			Name:      "registrations_total",
			Help:      "Trigger registrations by outcome",
		},
		[]string{"outcome"},
	)
	e.evictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "geofence",
			Name:      "evictions_total",
			Help:      "Triggers evicted to stay under the registration ceiling",
		},
	)
	e.activeTriggers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "geominder",
			Subsystem: "geofence",
			Name:      "active_triggers",
			Help:      "Currently registered proximity triggers",
		},
	)
	e.monitoring = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "geominder",
			Subsystem: "geofence",
			Name:      "monitoring_active",
			Help:      "1 while the device monitoring session is running",
		},
	)

	e.remindersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "reminder",
			Name:      "created_total",
			Help:      "Location reminder creations by location type and outcome",
		},
		[]string{"location_type", "outcome"},
	)
	e.triggerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "reminder",
			Name:      "trigger_events_total",
			Help:      "Trigger-fired events by handling outcome",
		},
		[]string{"outcome"},
	)
	e.deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geominder",
			Subsystem: "reminder",
			Name:      "deliveries_total",
			Help:      "Notifications handed to the delivery collaborator",
		},
		[]string{"reason"},
	)

	registry.MustRegister(
		e.cacheLookups,
		e.remoteLatency,
		e.remoteRequests,
		e.registrations,
		e.evictions,
		e.activeTriggers,
		e.monitoring,
		e.remindersCreated,
		e.triggerEvents,
		e.deliveries,
	)
	return e
}

// RecordCacheLookup records a hit or miss on the named resolver cache.
func (e *Exporter) RecordCacheLookup(cache string, hit bool) {
	if e == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	e.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordRemoteCall records a geocoding or nearby-search call.
func (e *Exporter) RecordRemoteCall(service, code string, latency time.Duration) {
	if e == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	e.remoteLatency.WithLabelValues(service).Observe(latency.Seconds())
	e.remoteRequests.WithLabelValues(service, code).Inc()
}

// RecordRegistration records one trigger registration outcome.
func (e *Exporter) RecordRegistration(outcome string) {
	if e == nil {
		return
	}
	e.registrations.WithLabelValues(outcome).Inc()
}

// RecordEvictions adds n evicted triggers.
func (e *Exporter) RecordEvictions(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.evictions.Add(float64(n))
}

// SetActiveTriggers sets the current trigger count.
func (e *Exporter) SetActiveTriggers(n int) {
	if e == nil {
		return
	}
	e.activeTriggers.Set(float64(n))
}

// SetMonitoring records whether the monitoring session is running.
func (e *Exporter) SetMonitoring(active bool) {
	if e == nil {
		return
	}
	if active {
		e.monitoring.Set(1)
		return
	}
	e.monitoring.Set(0)
}

// RecordReminderCreated records a creation attempt.
func (e *Exporter) RecordReminderCreated(locationType, outcome string) {
	if e == nil {
		return
	}
	e.remindersCreated.WithLabelValues(locationType, outcome).Inc()
}

// RecordTriggerEvent records how a trigger-fired event was handled.
func (e *Exporter) RecordTriggerEvent(outcome string) {
	if e == nil {
		return
	}
	e.triggerEvents.WithLabelValues(outcome).Inc()
}

// RecordDelivery records a notification hand-off.
func (e *Exporter) RecordDelivery(reason string) {
	if e == nil {
		return
	}
	e.deliveries.WithLabelValues(reason).Inc()
}

// Handler returns the HTTP handler serving the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
