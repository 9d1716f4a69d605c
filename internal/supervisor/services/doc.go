// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package services adapts Velomap components to suture.Service.

# Available Services

  - HTTPServerService: ListenAndServe with graceful Shutdown on cancel
  - WebSocketHubService: the marker broadcast hub
  - TransportService: one realtime transport; reconnect exhaustion stops
    it with suture.ErrDoNotRestart instead of stacking suture restarts on
    the adapter's own backoff
  - SweeperService: periodic eviction of never-positioned stale entries
  - ShutdownService: components started at construction that only need a
    supervised stop (embedded NATS server)

Reference stores and the NATS publisher implement suture.Service
themselves and are added to the tree directly.
*/
package services
