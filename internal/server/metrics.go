package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the HTTP boundary and the
// mirror sync. A fresh registry per instance keeps tests independent.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	evaluationsTotal *prometheus.CounterVec
	mirroredTotal    prometheus.Counter
	syncFailures     prometheus.Counter
}

// NewMetrics creates and registers the instrument set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uraics",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uraics",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uraics",
			Subsystem: "risk",
			Name:      "evaluations_total",
			Help:      "Rule evaluations by risk identifier and outcome.",
		}, []string{"risk_id", "outcome"}),
		mirroredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uraics",
			Subsystem: "mirror",
			Name:      "rows_mirrored_total",
			Help:      "Flagged rows written to the graph mirror.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uraics",
			Subsystem: "mirror",
			Name:      "sync_failures_total",
			Help:      "Rule syncs that failed entirely.",
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.evaluationsTotal,
		m.mirroredTotal,
		m.syncFailures,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeEvaluation(riskID string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.evaluationsTotal.WithLabelValues(riskID, outcome).Inc()
}
