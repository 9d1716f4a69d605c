// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDrop(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		reason string
	}{
		{name: "malformed station frame", kind: "stations", reason: "malformed"},
		{name: "bicycle without id", kind: "bicycles", reason: "unidentifiable"},
		{name: "handler panic", kind: "bicycles", reason: "panic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(FramesDropped.WithLabelValues(tt.kind, tt.reason))
			RecordDrop(tt.kind, tt.reason)
			after := testutil.ToFloat64(FramesDropped.WithLabelValues(tt.kind, tt.reason))
			if after-before != 1 {
				t.Errorf("counter advanced by %v, want 1", after-before)
			}
		})
	}
}

func TestRecordConnect(t *testing.T) {
	success := TransportConnects.WithLabelValues("test-connect", "success")
	failure := TransportConnects.WithLabelValues("test-connect", "failure")

	RecordConnect("test-connect", nil)
	RecordConnect("test-connect", errors.New("connection refused"))
	RecordConnect("test-connect", errors.New("handshake timeout"))

	if got := testutil.ToFloat64(success); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failure); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestRecordReconnect(t *testing.T) {
	RecordReconnect("test-reconnect", time.Second)
	RecordReconnect("test-reconnect", 1500*time.Millisecond)

	if got := testutil.ToFloat64(ReconnectAttempts.WithLabelValues("test-reconnect")); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
}

func TestRecordNATSPublish(t *testing.T) {
	RecordNATSPublish("test-nats", nil)
	RecordNATSPublish("test-nats", errors.New("nats: connection closed"))

	if got := testutil.ToFloat64(NATSMessagesPublished.WithLabelValues("test-nats")); got != 1 {
		t.Errorf("published = %v, want 1", got)
	}
	if got := testutil.ToFloat64(NATSPublishErrors.WithLabelValues("test-nats")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode string
		duration   time.Duration
	}{
		{
			name:       "list stations",
			method:     "GET",
			endpoint:   "/api/v1/stations",
			statusCode: "200",
			duration:   3 * time.Millisecond,
		},
		{
			name:       "unknown bicycle",
			method:     "GET",
			endpoint:   "/api/v1/bicycles/{id}",
			statusCode: "404",
			duration:   time.Millisecond,
		},
		{
			name:       "throttled reload",
			method:     "POST",
			endpoint:   "/api/v1/{kind}/reload",
			statusCode: "429",
			duration:   time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Record the request - should not panic
			RecordAPIRequest(tt.method, tt.endpoint, tt.statusCode, tt.duration)
		})
	}
}

// TestTrackActiveRequest_RequestLifecycle simulates realistic request lifecycle
func TestTrackActiveRequest_RequestLifecycle(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)
	for i := 0; i < 10; i++ {
		TrackActiveRequest(true)
	}
	for i := 0; i < 10; i++ {
		TrackActiveRequest(false)
	}
	if got := testutil.ToFloat64(APIActiveRequests); got != start {
		t.Errorf("active requests = %v, want %v", got, start)
	}
}

func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordFrame("test-concurrent", "update")
			Merges.WithLabelValues("test-concurrent", "rendered").Inc()
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(FramesReceived.WithLabelValues("test-concurrent", "update")); got != 20 {
		t.Errorf("frames = %v, want 20", got)
	}
}

func TestMetricsRegistration(t *testing.T) {
	// Test that all metrics can be collected without panic
	collectors := []prometheus.Collector{
		FramesReceived,
		FramesDropped,
		TransportState,
		TransportConnects,
		ReconnectAttempts,
		ReconnectDelay,
		WatchdogTimeouts,
		BulkRequests,
		Merges,
		BulkSnapshots,
		CacheEntries,
		StaleEvictions,
		MarkerProxies,
		Descriptors,
		ReferenceFetches,
		ReferenceFetchDuration,
		ReferenceRecords,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerConsecutiveFailures,
		CircuitBreakerTransitions,
		WSConnections,
		WSMessagesSent,
		WSErrors,
		NATSMessagesPublished,
		NATSPublishErrors,
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveRequests,
		AppInfo,
		AppUptime,
	}

	for _, m := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("Metric has no descriptors")
		}
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	SetAppInfo("test")
	RecordReferenceFetch("stations", "success", 20*time.Millisecond)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}

func BenchmarkRecordFrame(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordFrame("bicycles", "update")
	}
}
