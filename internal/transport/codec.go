// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"fmt"
	"strings"
)

// FrameType classifies a decoded inbound frame.
type FrameType int

const (
	FrameMessage FrameType = iota
	FrameHeartbeat
	FrameConnected
	FrameReceipt
	FrameError
)

// Inbound is one decoded frame.
type Inbound struct {
	Type         FrameType
	Destination  string
	Subscription string
	Body         []byte
	// Message carries the broker's error text for FrameError.
	Message string
	// HeartBeat is the server heart-beat header from a STOMP CONNECTED frame.
	HeartBeat string
}

// Codec encodes outbound control messages and decodes inbound ones for one
// wire protocol. A websocket message carries exactly one frame.
type Codec interface {
	Name() string
	// Subprotocols are offered during the websocket handshake.
	Subprotocols() []string
	// Connect returns the greeting to send after dialing and whether a
	// FrameConnected reply must be awaited. A nil greeting sends nothing.
	Connect(opts ConnectOptions) ([]byte, bool, error)
	Subscribe(id, destination string) ([]byte, error)
	Send(destination string, body []byte) ([]byte, error)
	// Heartbeat returns the protocol keepalive, or nil to use websocket pings.
	Heartbeat() []byte
	// Disconnect returns the goodbye message, or nil.
	Disconnect() []byte
	Decode(message []byte) (Inbound, error)
}

// ConnectOptions carry the protocol handshake parameters.
type ConnectOptions struct {
	Host      string
	Login     string
	Passcode  string
	HeartBeat string
}

// Protocol names accepted by NewCodec.
const (
	ProtocolSTOMP = "stomp"
	ProtocolJSON  = "json"
)

// NewCodec returns the codec for a protocol name.
func NewCodec(protocol string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case ProtocolSTOMP, "":
		return STOMPCodec{}, nil
	case ProtocolJSON:
		return EnvelopeCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown transport protocol %q", protocol)
	}
}
