// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package transport maintains the realtime websocket connection for one
entity kind and routes its frames to bulk, update and delete handlers.

# Protocols

Two wire protocols are supported through the Codec interface:

  - stomp: STOMP 1.2 frames, one per websocket text message. The adapter
    sends CONNECT, waits for CONNECTED, then subscribes to the configured
    topics and sends the bulk request to BulkRequestDestination.
  - json: a plain JSON envelope ({"topic": ..., "data": ...}). Bare
    records without an envelope are routed to the update handler.

# Lifecycle

	Disconnected -> Connecting -> Connected -> Receiving
	                    ^                          |
	                    +------ Reconnecting <-----+
	                                 |
	                               Failed

A lost connection is retried after InitialDelay * Multiplier^attempt,
capped at MaxDelay. The attempt counter resets after every successful
handshake. Once MaxAttempts consecutive attempts fail the adapter enters
Failed and Serve returns ErrExhausted.

A watchdog closes the connection when no frame (heart-beats included)
arrives within WatchdogTimeout, which feeds the normal reconnect path.

# Usage

	a, err := transport.New(transport.Config{
	    Kind:                   models.KindBicycle,
	    URL:                    "wss://bikes.example/ws",
	    BulkTopic:              "/topic/bicycles/bulk",
	    UpdateTopics:           []string{"/topic/bicycles"},
	    BulkRequestDestination: "/app/bicycles/bulk",
	    Reconnect:              transport.DefaultReconnectConfig(),
	})
	a.Connect(ctx, feed.Bulk, feed.Update)
	defer a.Disconnect()

An Adapter is also a suture.Service; Serve blocks until the context is
canceled, Disconnect is called or the budget is exhausted.

# Thread Safety

Handlers for one adapter are invoked sequentially in arrival order.
Connect, Disconnect, RequestBulkReload and the state accessors are safe
for concurrent use.
*/
package transport
