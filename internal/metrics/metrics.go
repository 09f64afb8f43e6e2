package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultReused  = "reused"
)

// Metrics holds the bootstrapper's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_builds_total",
				Help: "Preview image builds by result",
			},
			[]string{"result"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "preview_build_step_duration_seconds",
				Help:    "Duration of each build pipeline step",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"step"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_runs_total",
				Help: "Preview container starts by result",
			},
			[]string{"result"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "preview_api_requests_total",
				Help: "Control API requests by route and status class",
			},
			[]string{"route", "status"},
		),
	}
	m.registry.MustRegister(
		m.builds,
		m.buildDuration,
		m.runs,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveBuild(result string) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(route, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, status).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
