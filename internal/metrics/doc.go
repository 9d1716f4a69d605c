// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package metrics provides Prometheus metrics collection and export for observability.

Collectors are registered on the default registry through promauto and exposed
by the API server at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Transport:
  - velomap_frames_received_total{kind,channel}
  - velomap_frames_dropped_total{kind,reason}
  - velomap_transport_state{kind}
  - velomap_transport_connects_total{kind,result}
  - velomap_reconnect_attempts_total{kind}, velomap_reconnect_delay_seconds{kind}
  - velomap_watchdog_timeouts_total{kind}
  - velomap_bulk_requests_total{kind,result}

Live cache and markers:
  - velomap_merges_total{kind,outcome}
  - velomap_bulk_snapshots_total{kind}
  - velomap_cache_entries{kind}
  - velomap_stale_evictions_total{kind}
  - velomap_marker_proxies{kind}
  - velomap_descriptors{kind}

Reference store:
  - velomap_reference_fetches_total{kind,result}
  - velomap_reference_fetch_duration_seconds{kind}
  - velomap_reference_records{kind}
  - circuit_breaker_* (state, requests, consecutive failures, transitions)

Fan-out:
  - websocket_connections, websocket_messages_sent_total, websocket_errors_total
  - nats_messages_published_total{kind}, nats_publish_errors_total{kind}

HTTP:
  - api_requests_total, api_request_duration_seconds, api_active_requests

# Thread Safety

All collectors are safe for concurrent use.
*/
package metrics
