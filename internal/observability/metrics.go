package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors on a private registry. All methods are
// safe on a nil receiver so tests can pass nil.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	imageSources   *prometheus.CounterVec
	ticketClosures *prometheus.CounterVec
	sweepPrompts   prometheus.Counter
}

// NewMetrics registers the service collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_http_errors_total",
			Help: "HTTP errors by route and error code.",
		}, []string{"path", "method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_catalog_refresh_total",
			Help: "Catalog refresh attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		imageSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_image_proxy_total",
			Help: "Image proxy responses by source.",
		}, []string{"source"}),
		ticketClosures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_ticket_closures_total",
			Help: "Ticket closures by actor.",
		}, []string{"actor"}),
		sweepPrompts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderdesk_inactivity_prompts_total",
			Help: "Inactivity prompts sent.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestLatency,
		m.errors,
		m.refreshes,
		m.imageSources,
		m.ticketClosures,
		m.sweepPrompts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordRefresh counts one catalog refresh decision.
func (m *Metrics) RecordRefresh(trigger, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(trigger, outcome).Inc()
}

// RecordImage counts where an image proxy response came from.
func (m *Metrics) RecordImage(source string) {
	if m == nil {
		return
	}
	m.imageSources.WithLabelValues(source).Inc()
}

// RecordTicketClosed counts a ticket closure.
func (m *Metrics) RecordTicketClosed(actor string) {
	if m == nil {
		return
	}
	m.ticketClosures.WithLabelValues(actor).Inc()
}

// RecordPrompt counts an inactivity prompt.
func (m *Metrics) RecordPrompt() {
	if m == nil {
		return
	}
	m.sweepPrompts.Inc()
}
