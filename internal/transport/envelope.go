// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// EnvelopeCodec speaks a plain JSON protocol. Inbound messages are either
// an envelope naming the channel,
//
//	{"topic": "/topic/bicycles", "data": {...}}
//
// or a bare record or array, which is routed to the update channel.
// Outbound control messages use {"action": ..., "topic": ...}.
type EnvelopeCodec struct{}

type outboundEnvelope struct {
	Action string          `json:"action"`
	Topic  string          `json:"topic,omitempty"`
	ID     string          `json:"id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// inboundEnvelope keeps every field raw: a bare record may carry "type"
// or "channel" with any JSON type, and must still decode.
type inboundEnvelope struct {
	Topic       json.RawMessage `json:"topic"`
	Destination json.RawMessage `json:"destination"`
	Channel     json.RawMessage `json:"channel"`
	Type        json.RawMessage `json:"type"`
	Data        json.RawMessage `json:"data"`
	Payload     json.RawMessage `json:"payload"`
	Message     json.RawMessage `json:"message"`
}

// Name implements Codec.
func (EnvelopeCodec) Name() string { return ProtocolJSON }

// Subprotocols implements Codec.
func (EnvelopeCodec) Subprotocols() []string { return nil }

// Connect implements Codec. The JSON protocol has no handshake.
func (EnvelopeCodec) Connect(ConnectOptions) ([]byte, bool, error) {
	return nil, false, nil
}

// Subscribe implements Codec.
func (EnvelopeCodec) Subscribe(id, destination string) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Action: "subscribe", Topic: destination, ID: id})
}

// Send implements Codec.
func (EnvelopeCodec) Send(destination string, body []byte) ([]byte, error) {
	env := outboundEnvelope{Action: "send", Topic: destination}
	if len(bytes.TrimSpace(body)) > 0 {
		if !json.Valid(body) {
			return nil, fmt.Errorf("send body for %s is not JSON", destination)
		}
		env.Data = body
	}
	return json.Marshal(env)
}

// Heartbeat implements Codec; websocket pings are used instead.
func (EnvelopeCodec) Heartbeat() []byte { return nil }

// Disconnect implements Codec.
func (EnvelopeCodec) Disconnect() []byte { return nil }

// Decode implements Codec.
func (EnvelopeCodec) Decode(message []byte) (Inbound, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return Inbound{Type: FrameHeartbeat}, nil
	}
	if !json.Valid(trimmed) {
		return Inbound{}, fmt.Errorf("json frame: invalid document")
	}
	if trimmed[0] != '{' {
		return Inbound{Type: FrameMessage, Body: trimmed}, nil
	}

	var env inboundEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Inbound{}, fmt.Errorf("json frame: %w", err)
	}

	typ := rawString(env.Type)
	switch strings.ToLower(typ) {
	case "heartbeat", "ping", "pong":
		return Inbound{Type: FrameHeartbeat}, nil
	case "error":
		return Inbound{Type: FrameError, Message: rawString(env.Message)}, nil
	}

	dest := firstNonEmpty(rawString(env.Topic), rawString(env.Destination), rawString(env.Channel), typ)
	body := present(env.Data)
	if body == nil {
		body = present(env.Payload)
	}
	if dest == "" || len(body) == 0 {
		// Not an envelope: the whole document is the record.
		return Inbound{Type: FrameMessage, Body: trimmed}, nil
	}
	return Inbound{Type: FrameMessage, Destination: dest, Body: body}, nil
}

// rawString returns the value of a JSON string, or "" for any other type.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// present treats a missing or null field as absent.
func present(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
