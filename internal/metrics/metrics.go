// Package metrics exposes Prometheus instruments for normalization passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/mlready/internal/report"
)

const namespace = "mlready"

// Metrics holds the instruments and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	columns      *prometheus.CounterVec
	cells        *prometheus.CounterVec
	activePasses prometheus.Gauge
	rejected     prometheus.Counter
}

// New registers every instrument on a fresh registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Build and replay passes by mode and outcome.",
		}, []string{"mode", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of successful passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"}),
		columns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "columns_total",
			Help:      "Processed columns by kind and status.",
		}, []string{"kind", "status"}),
		cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_total",
			Help:      "Processed cells by result.",
		}, []string{"result"}),
		activePasses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_passes",
			Help:      "Passes currently holding a limiter slot.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_passes_total",
			Help:      "Requests turned away because every pass slot was busy.",
		}),
	}

	m.registry.MustRegister(
		m.passes, m.passDuration, m.columns, m.cells, m.activePasses, m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObservePass records a successful pass.
func (m *Metrics) ObservePass(r *report.Report, elapsed time.Duration) {
	mode := string(r.Mode)
	m.passes.WithLabelValues(mode, "ok").Inc()
	m.passDuration.WithLabelValues(mode).Observe(elapsed.Seconds())

	for _, c := range r.Columns {
		m.columns.WithLabelValues(string(c.Kind), string(c.Status)).Inc()
		m.cells.WithLabelValues("converted").Add(float64(c.Converted))
		m.cells.WithLabelValues("missing").Add(float64(c.Missing))
		m.cells.WithLabelValues("failed").Add(float64(c.Failed))
	}
}

// PassFailed records a pass that returned an error.
func (m *Metrics) PassFailed(mode report.Mode) {
	m.passes.WithLabelValues(string(mode), "error").Inc()
}

// SetActive reports the number of passes in flight.
func (m *Metrics) SetActive(n int) { m.activePasses.Set(float64(n)) }

// Rejected counts a request refused for lack of a pass slot.
func (m *Metrics) Rejected() { m.rejected.Inc() }
