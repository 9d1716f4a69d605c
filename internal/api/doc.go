// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package api serves the live map state over HTTP with the chi router.

Records, markers and nearby queries are read from the live channels; the
only write is POST /api/v1/{kind}/reload, which asks the upstream for a
fresh bulk snapshot. {kind} accepts stations, bicycles, or the singular
and "bike" aliases.

# Responses

Every JSON body uses APIResponse:

	{"success":true,"data":[...],"meta":{"request_id":"...","timestamp":"...","pagination":{...}}}
	{"success":false,"error":{"code":"NOT_FOUND","message":"stations \"9\" not found"}}

# Middleware

  - RequestIDWithLogging: X-Request-Id in, out and on every log line
  - CORS (go-chi/cors); the same origin list bounds WebSocket upgrades
  - RateLimit (go-chi/httprate), per client IP
  - PrometheusMetrics: request counters labelled by route pattern
  - APISecurityHeaders, including Cache-Control: no-store

# Stream

GET /ws upgrades to the hub in internal/websocket. Clients receive a
snapshot of every marker, then marker_attach/marker_update/marker_detach
messages as the pools change. If the hub's queue overflows and drops a
marker message, every client gets a fresh snapshot once the queue drains.
*/
package api
