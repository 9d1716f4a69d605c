// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/metrics"
)

// Browser connection limits. Pings go out at 90% of the pong deadline.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait / 10 * 9
	maxInboundSize = 4 * 1024
	sendBuffer     = 512
)

var nextClientID atomic.Uint64

// Client is one browser viewing the map. The hub owns send and closes it
// on unregister; the connection is closed by whichever pump exits first.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient assigns the next client id. Lower ids receive broadcasts first.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{id: nextClientID.Add(1), hub: hub, conn: conn, send: make(chan Message, sendBuffer)}
}

// ID returns the client's id.
func (c *Client) ID() uint64 { return c.id }

// Upgrader returns the upgrader for the marker stream. A nil checkOrigin
// keeps gorilla's same-origin rule.
func Upgrader(checkOrigin func(r *http.Request) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      checkOrigin,
	}
}

// ServeWS upgrades r and hands the connection to hub. The snapshot is the
// first message the browser sees.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := NewClient(hub, conn)
	select {
	case hub.Register <- c:
		c.Start()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump keeps the pong deadline fresh and answers {"type":"ping"}.
// Any other inbound message is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	if err := extend(""); err != nil {
		return
	}
	c.conn.SetPongHandler(extend)

	for {
		var in Message
		err := c.conn.ReadJSON(&in)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket read failed")
			}
			return
		}
		if in.Type != MessageTypePing {
			continue
		}
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}
	}
}

// write sends one frame under the write deadline.
func (c *Client) write(frameType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(frameType, data)
}

// writePump serializes hub messages and keeps the connection alive with
// control pings. It returns once the hub closes send or a write fails.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-ping.C:
			if c.write(websocket.PingMessage, nil) != nil {
				return
			}

		case msg, open := <-c.send:
			if !open {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			data, err := MarshalMessage(msg)
			if err != nil {
				metrics.WSErrors.WithLabelValues("marshal").Inc()
				logging.Error().Err(err).Str("message_type", msg.Type).Msg("websocket message not encodable")
				continue
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}
		}
	}
}
