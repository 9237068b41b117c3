// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream (MangaDex API) calls
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangarelay_upstream_requests_total",
			Help: "Total number of upstream API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mangarelay_upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mangarelay_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Aggregator
	DiscoveryPages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mangarelay_discovery_pages",
			Help:    "Number of chapter pages scanned per recently-updated request",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		},
	)

	FallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mangarelay_recent_fallback_total",
			Help: "Number of recently-updated requests that needed the fallback listing",
		},
	)

	// Image relay
	RelayStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangarelay_relay_streams_total",
			Help: "Image relay requests by outcome",
		},
		[]string{"outcome"},
	)

	RelayBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mangarelay_relay_bytes_total",
			Help: "Bytes streamed through the image relay",
		},
	)

	// Inbound API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangarelay_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mangarelay_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordRelay(outcome string, bytes int64) {
	RelayStreamsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		RelayBytesTotal.Add(float64(bytes))
	}
}
