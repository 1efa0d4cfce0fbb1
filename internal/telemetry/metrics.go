// Package telemetry collects per-run Prometheus metrics. Every run owns its own
// registry; nothing is registered globally.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "indigo_poy"

// Metrics holds the collectors for one run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheFetches  prometheus.Counter
	upstream      *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	events        *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	stageDuration *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Queries answered from the content-addressed cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Queries not present in the cache",
		}),
		cacheFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetches_total",
			Help:      "Remote fetches stored into the cache",
		}),
		upstream: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the chain-indexing service",
		}, []string{"endpoint", "outcome"}),
		fetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Latency of requests to the chain-indexing service",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"endpoint"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Reconstructed events by kind and classification",
		}, []string{"kind", "classification"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Warnings attached to views and events",
		}, []string{"code"}),
		stageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) CacheFetch() {
	if m != nil {
		m.cacheFetches.Inc()
	}
}

// ObserveRequest records one upstream request attempt.
func (m *Metrics) ObserveRequest(endpoint string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstream.WithLabelValues(endpoint, outcome).Inc()
	m.fetchLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Event(kind, classification string) {
	if m != nil {
		m.events.WithLabelValues(kind, classification).Inc()
	}
}

func (m *Metrics) Warning(code string) {
	if m != nil {
		m.warnings.WithLabelValues(code).Inc()
	}
}

// Stage records how long a pipeline stage took.
func (m *Metrics) Stage(name string, started time.Time) {
	if m != nil {
		m.stageDuration.WithLabelValues(name).Set(time.Since(started).Seconds())
	}
}

// WriteFile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
