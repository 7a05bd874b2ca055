// Package metrics exposes Prometheus counters for editor sessions and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mdpreview/internal/editor"
)

const namespace = "mdpreview"

// Metrics owns a private registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg *prometheus.Registry

	loads        *prometheus.CounterVec
	saves        *prometheus.CounterVec
	saveSeconds  *prometheus.HistogramVec
	sessions     prometheus.Gauge
	requests     *prometheus.CounterVec
	requestTimes *prometheus.HistogramVec
}

var _ editor.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "loads_total",
			Help:      "Document loads by outcome.",
		}, []string{"outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "saves_total",
			Help:      "Document saves by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		saveSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "save_duration_seconds",
			Help:      "Store round-trip time of document saves.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "open_sessions",
			Help:      "Editor sessions currently open.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.reg.MustRegister(
		m.loads, m.saves, m.saveSeconds, m.sessions, m.requests, m.requestTimes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveLoad(outcome string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSave(trigger editor.Trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(string(trigger), outcome).Inc()
	if outcome == "ok" || outcome == "error" {
		m.saveSeconds.WithLabelValues(string(trigger)).Observe(d.Seconds())
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// ObserveRequest records one HTTP request. route is the mux pattern, never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestTimes.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
