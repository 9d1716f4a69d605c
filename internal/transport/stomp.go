// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

// STOMP commands and headers used by the codec.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdSend        = "SEND"
	cmdMessage     = "MESSAGE"
	cmdReceipt     = "RECEIPT"
	cmdError       = "ERROR"
	cmdDisconnect  = "DISCONNECT"
	hdrAccept      = "accept-version"
	hdrHost        = "host"
	hdrLogin       = "login"
	hdrPasscode    = "passcode"
	hdrHeartBeat   = "heart-beat"
	hdrDestination = "destination"
	hdrID          = "id"
	hdrAck         = "ack"
	hdrSubscr      = "subscription"
	hdrMessage     = "message"
	hdrContentType = "content-type"
	hdrContentLen  = "content-length"
)

// STOMPCodec speaks STOMP 1.2 over websocket text messages, the way
// Spring's message broker relays bike-share telemetry.
type STOMPCodec struct{}

// Name implements Codec.
func (STOMPCodec) Name() string { return ProtocolSTOMP }

// Subprotocols implements Codec.
func (STOMPCodec) Subprotocols() []string {
	return []string{"v12.stomp", "v11.stomp", "v10.stomp"}
}

// Connect implements Codec.
func (STOMPCodec) Connect(opts ConnectOptions) ([]byte, bool, error) {
	f := frame.New(cmdConnect, hdrAccept, "1.2,1.1,1.0")
	if opts.Host != "" {
		f.Header.Set(hdrHost, opts.Host)
	}
	if opts.Login != "" {
		f.Header.Set(hdrLogin, opts.Login)
		f.Header.Set(hdrPasscode, opts.Passcode)
	}
	hb := opts.HeartBeat
	if hb == "" {
		hb = "0,0"
	}
	f.Header.Set(hdrHeartBeat, hb)

	b, err := encodeFrame(f)
	return b, true, err
}

// Subscribe implements Codec.
func (STOMPCodec) Subscribe(id, destination string) ([]byte, error) {
	return encodeFrame(frame.New(cmdSubscribe,
		hdrID, id,
		hdrDestination, destination,
		hdrAck, "auto",
	))
}

// Send implements Codec.
func (STOMPCodec) Send(destination string, body []byte) ([]byte, error) {
	f := frame.New(cmdSend, hdrDestination, destination)
	if len(body) > 0 {
		f.Header.Set(hdrContentType, "application/json")
		f.Header.Set(hdrContentLen, strconv.Itoa(len(body)))
		f.Body = body
	}
	return encodeFrame(f)
}

// Heartbeat implements Codec. STOMP heart-beats are a bare end of line.
func (STOMPCodec) Heartbeat() []byte { return []byte("\n") }

// Disconnect implements Codec.
func (STOMPCodec) Disconnect() []byte {
	b, err := encodeFrame(frame.New(cmdDisconnect))
	if err != nil {
		return nil
	}
	return b
}

// Decode implements Codec.
func (STOMPCodec) Decode(message []byte) (Inbound, error) {
	if len(bytes.TrimSpace(bytes.TrimRight(message, "\x00"))) == 0 {
		return Inbound{Type: FrameHeartbeat}, nil
	}

	// Some relays strip the terminating NUL.
	trimmed := bytes.TrimRight(message, "\r\n")
	if !bytes.HasSuffix(trimmed, []byte{0}) {
		message = append(bytes.Clone(trimmed), 0)
	}

	f, err := frame.NewReader(bytes.NewReader(message)).Read()
	if err != nil {
		return Inbound{}, fmt.Errorf("stomp frame: %w", err)
	}
	if f == nil {
		return Inbound{Type: FrameHeartbeat}, nil
	}

	switch f.Command {
	case cmdMessage:
		return Inbound{
			Type:         FrameMessage,
			Destination:  f.Header.Get(hdrDestination),
			Subscription: f.Header.Get(hdrSubscr),
			Body:         f.Body,
		}, nil
	case cmdConnected:
		return Inbound{Type: FrameConnected, HeartBeat: f.Header.Get(hdrHeartBeat)}, nil
	case cmdReceipt:
		return Inbound{Type: FrameReceipt}, nil
	case cmdError:
		msg := f.Header.Get(hdrMessage)
		if msg == "" {
			msg = string(f.Body)
		}
		return Inbound{Type: FrameError, Message: msg, Body: f.Body}, nil
	default:
		return Inbound{}, fmt.Errorf("unexpected stomp command %q", f.Command)
	}
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}
