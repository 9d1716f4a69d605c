// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package middleware provides HTTP middleware that is independent of the API
handlers.

  - Compression: gzip for clients sending Accept-Encoding: gzip; WebSocket
    upgrades are never wrapped
  - PerformanceMonitor: ring buffer of recent requests with per-route
    p50/p95/p99 latency, served at GET /api/v1/performance

Request ids, CORS, rate limiting and Prometheus instrumentation live in
internal/api next to the router that uses them.

Usage:

	perf := middleware.NewPerformanceMonitor(1000, time.Second)
	r.Use(perf.Middleware)
	r.Use(middleware.Compression)

	for _, s := range perf.Stats() {
	    fmt.Println(s.Route, s.P95Ms)
	}
*/
package middleware
