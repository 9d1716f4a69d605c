// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - realtime transport connections and frames
// - live cache reconciliation
// - marker pool and descriptor registry
// - reference store fetches behind the circuit breaker
// - render hub clients and NATS republishing
// - HTTP API

var (
	// Transport Metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_frames_received_total",
			Help: "Total number of inbound frames by entity kind and channel",
		},
		[]string{"kind", "channel"}, // channel: "bulk", "update", "delete", "heartbeat", "control"
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_frames_dropped_total",
			Help: "Total number of frames dropped without a state change",
		},
		[]string{"kind", "reason"}, // "malformed", "unidentifiable", "decode", "panic", "unrouted"
	)

	TransportState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomap_transport_state",
			Help: "Transport state (0=disconnected, 1=connecting, 2=connected, 3=receiving, 4=reconnecting, 5=failed)",
		},
		[]string{"kind"},
	)

	TransportConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_transport_connects_total",
			Help: "Total number of connection attempts",
		},
		[]string{"kind", "result"}, // "success", "failure"
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts",
		},
		[]string{"kind"},
	)

	ReconnectDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velomap_reconnect_delay_seconds",
			Help:    "Delay before each scheduled reconnect attempt",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	WatchdogTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_watchdog_timeouts_total",
			Help: "Total number of connections torn down for silence",
		},
		[]string{"kind"},
	)

	BulkRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_bulk_requests_total",
			Help: "Total number of bulk snapshot requests",
		},
		[]string{"kind", "result"}, // "sent", "throttled", "failed"
	)

	// Live Cache Metrics
	Merges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_merges_total",
			Help: "Total number of records applied to the live cache",
		},
		[]string{"kind", "outcome"}, // "seed", "rendered", "deferred"
	)

	BulkSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_bulk_snapshots_total",
			Help: "Total number of bulk snapshots applied",
		},
		[]string{"kind"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomap_cache_entries",
			Help: "Current number of live cache entries",
		},
		[]string{"kind"},
	)

	StaleEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_stale_evictions_total",
			Help: "Total number of never-positioned entries evicted by the stale sweep",
		},
		[]string{"kind"},
	)

	// Marker Metrics
	MarkerProxies = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomap_marker_proxies",
			Help: "Current number of marker proxies in the pool",
		},
		[]string{"kind"},
	)

	Descriptors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomap_descriptors",
			Help: "Current number of distinct shared marker descriptors",
		},
		[]string{"kind"},
	)

	// Reference Store Metrics
	ReferenceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velomap_reference_fetches_total",
			Help: "Total number of reference store loads",
		},
		[]string{"kind", "result"}, // "success", "failure", "rejected"
	)

	ReferenceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velomap_reference_fetch_duration_seconds",
			Help:    "Duration of reference store loads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ReferenceRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "velomap_reference_records",
			Help: "Current number of records held by the reference store",
		},
		[]string{"kind"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Render Hub Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected map clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to map clients",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// NATS Metrics
	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of merged records published to NATS",
		},
		[]string{"kind"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of failed NATS publishes",
		},
		[]string{"kind"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordFrame records one inbound frame.
func RecordFrame(kind, channel string) {
	FramesReceived.WithLabelValues(kind, channel).Inc()
}

// RecordDrop records a frame dropped for reason.
func RecordDrop(kind, reason string) {
	FramesDropped.WithLabelValues(kind, reason).Inc()
}

// RecordConnect records the outcome of a dial and handshake.
func RecordConnect(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	TransportConnects.WithLabelValues(kind, result).Inc()
}

// RecordReconnect records a scheduled reconnect attempt and its delay.
func RecordReconnect(kind string, delay time.Duration) {
	ReconnectAttempts.WithLabelValues(kind).Inc()
	ReconnectDelay.WithLabelValues(kind).Observe(delay.Seconds())
}

// RecordReferenceFetch records a reference store load.
func RecordReferenceFetch(kind, result string, duration time.Duration) {
	ReferenceFetches.WithLabelValues(kind, result).Inc()
	ReferenceFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordNATSPublish records a publish attempt.
func RecordNATSPublish(kind string, err error) {
	if err != nil {
		NATSPublishErrors.WithLabelValues(kind).Inc()
		return
	}
	NATSMessagesPublished.WithLabelValues(kind).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}
