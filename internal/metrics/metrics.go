package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the proxy. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// RequestLatency tracks inbound HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal counts inbound HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight is the number of inbound requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts handler errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// InboundRateLimited counts requests rejected by the per-IP limiter
	InboundRateLimited prometheus.Counter

	// TokenRefreshes counts OAuth credential exchanges by result
	TokenRefreshes *prometheus.CounterVec
	// UpstreamRequests counts outbound calls by endpoint and status code
	UpstreamRequests *prometheus.CounterVec
	// UpstreamLatency tracks outbound call latency by endpoint
	UpstreamLatency *prometheus.HistogramVec
	// UpstreamRetries counts retries after an upstream 429
	UpstreamRetries *prometheus.CounterVec
	// FanOutItems counts fan-out items by outcome
	FanOutItems *prometheus.CounterVec
	// UpstreamRateLimitRemaining mirrors X-Ratelimit-Remaining
	UpstreamRateLimitRemaining prometheus.Gauge
	// UpstreamRateLimitUsed mirrors X-Ratelimit-Used
	UpstreamRateLimitUsed prometheus.Gauge
	// UpstreamRateLimitReset mirrors X-Ratelimit-Reset in seconds
	UpstreamRateLimitReset prometheus.Gauge

	// InsiderFeed counts insider-trade responses by source and result
	InsiderFeed *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		InboundRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_rate_limited_total",
				Help:      "Requests rejected by the per-IP rate limiter",
			},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "OAuth client-credentials exchanges",
			},
			[]string{"result"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Outbound upstream requests",
			},
			[]string{"endpoint", "status"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Outbound upstream request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Upstream retries after a 429 response",
			},
			[]string{"endpoint"},
		),
		FanOutItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fanout_items_total",
				Help:      "Fan-out items by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamRateLimitRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_ratelimit_remaining",
				Help:      "Requests remaining in the upstream rate-limit window",
			},
		),
		UpstreamRateLimitUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_ratelimit_used",
				Help:      "Requests used in the upstream rate-limit window",
			},
		),
		UpstreamRateLimitReset: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_ratelimit_reset_seconds",
				Help:      "Seconds until the upstream rate-limit window resets",
			},
		),
		InsiderFeed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insider_feed_total",
				Help:      "Insider-trade responses by source and result",
			},
			[]string{"source", "result"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.InboundRateLimited,
		m.TokenRefreshes,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.UpstreamRetries,
		m.FanOutItems,
		m.UpstreamRateLimitRemaining,
		m.UpstreamRateLimitUsed,
		m.UpstreamRateLimitReset,
		m.InsiderFeed,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) IncHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

func (m *Metrics) RecordInboundRateLimited() {
	if m == nil {
		return
	}
	m.InboundRateLimited.Inc()
}

// RecordTokenRefresh records a credential exchange with result "success" or "error"
func (m *Metrics) RecordTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordUpstream records one outbound call. status is the HTTP status code
// as a string, or "error" for transport failures.
func (m *Metrics) RecordUpstream(endpoint, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) RecordUpstreamRetry(endpoint string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(endpoint).Inc()
}

// RecordFanOutItem records a fan-out item outcome ("success" or "failed")
func (m *Metrics) RecordFanOutItem(outcome string) {
	if m == nil {
		return
	}
	m.FanOutItems.WithLabelValues(outcome).Inc()
}

// SetUpstreamRateLimit mirrors the last seen upstream rate-limit headers.
func (m *Metrics) SetUpstreamRateLimit(used, remaining, resetSeconds float64) {
	if m == nil {
		return
	}
	m.UpstreamRateLimitUsed.Set(used)
	m.UpstreamRateLimitRemaining.Set(remaining)
	m.UpstreamRateLimitReset.Set(resetSeconds)
}

// RecordInsiderFeed records an insider-trade response
func (m *Metrics) RecordInsiderFeed(source, result string) {
	if m == nil {
		return
	}
	m.InsiderFeed.WithLabelValues(source, result).Inc()
}
