// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

// State is the connection state of an Adapter.
type State int32

const (
	// StateDisconnected is the initial state and the state after Disconnect.
	StateDisconnected State = iota
	// StateConnecting covers the websocket dial and protocol handshake.
	StateConnecting
	// StateConnected means the handshake completed; subscriptions and the
	// bulk request have been sent but no frame has arrived yet.
	StateConnected
	// StateReceiving means frames are flowing.
	StateReceiving
	// StateReconnecting means a reconnect attempt is scheduled.
	StateReconnecting
	// StateFailed means the reconnect budget is exhausted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReceiving:
		return "receiving"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Live reports whether the state has an open, handshaken connection.
func (s State) Live() bool {
	return s == StateConnected || s == StateReceiving
}

// MarshalText renders the state name for JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
