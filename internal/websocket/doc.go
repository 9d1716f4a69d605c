// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package websocket pushes marker changes to browser map clients.

The Hub implements markers.Surface. Plugged into a marker pool (directly or
through markers.Tee), every Attach, Update and Detach the pool performs is
broadcast to connected clients as a JSON message:

	{"type": "marker_attach", "data": {"kind": "stations", "id": "7", "position": {...}, "descriptor": {...}, "state": {...}}}
	{"type": "marker_update", "data": {...}}
	{"type": "marker_detach", "data": {"kind": "bicycles", "id": "B-1"}}
	{"type": "transport_state", "data": {"kind": "stations", "state": "connected"}}

A client that registers first receives one "snapshot" message carrying
every marker currently attached (see Hub.SetSnapshotSource), then the live
stream.

Architecture:

	markers.Pool ──▶ Hub.broadcast ──▶ Client.send ──▶ writePump ──▶ browser
	                     ▲
	     ServeWS ──▶ Hub.Register

Surface calls never block: the pool invokes them under its own lock, so
a full hub queue drops the message and counts websocket_errors_total.
A client that cannot keep up is disconnected and will resync from the
snapshot on reconnect.

Thread Safety:

All Hub methods are safe for concurrent use. RunWithContext must run in
exactly one goroutine; the hub also implements suture.Service via Serve.

Configuration:

  - writeWait: 10 seconds
  - pongWait: 60 seconds
  - pingPeriod: 54 seconds
  - maxMessageSize: 64 KB inbound
*/
package websocket
