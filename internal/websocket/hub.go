// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeAttach         = "marker_attach"
	MessageTypeUpdate         = "marker_update"
	MessageTypeDetach         = "marker_detach"
	MessageTypeSnapshot       = "snapshot"
	MessageTypeTransportState = "transport_state"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// broadcastBuffer is the capacity of the hub's inbound queue.
const broadcastBuffer = 1024

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DetachData is the payload of a marker_detach message.
type DetachData struct {
	Kind models.Kind `json:"kind"`
	ID   string      `json:"id"`
}

// TransportStateData is the payload of a transport_state message.
type TransportStateData struct {
	Kind  models.Kind `json:"kind"`
	State string      `json:"state"`
}

// SnapshotFunc returns the markers currently on the map. The hub sends its
// result to every client right after it registers.
type SnapshotFunc func() []markers.MarkerView

// Hub maintains the set of active clients and fans marker changes out to
// them. It implements markers.Surface, so a marker pool can render straight
// into connected browsers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	snapshotMu sync.RWMutex
	snapshot   SnapshotFunc

	// resync is set when a marker message was dropped on a full queue.
	resync atomic.Bool
}

var _ markers.Surface = (*Hub)(nil)

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// SetSnapshotSource installs the function used to greet new clients.
func (h *Hub) SetSnapshotSource(fn SnapshotFunc) {
	h.snapshotMu.Lock()
	h.snapshot = fn
	h.snapshotMu.Unlock()
}

// Attach implements markers.Surface.
func (h *Hub) Attach(view markers.MarkerView) {
	h.enqueue(Message{Type: MessageTypeAttach, Data: view})
}

// Update implements markers.Surface.
func (h *Hub) Update(view markers.MarkerView) {
	h.enqueue(Message{Type: MessageTypeUpdate, Data: view})
}

// Detach implements markers.Surface.
func (h *Hub) Detach(kind models.Kind, id string) {
	h.enqueue(Message{Type: MessageTypeDetach, Data: DetachData{Kind: kind, ID: id}})
}

// BroadcastTransportState tells clients that a channel's connection state changed.
func (h *Hub) BroadcastTransportState(kind models.Kind, state string) {
	h.enqueue(Message{Type: MessageTypeTransportState, Data: TransportStateData{Kind: kind, State: state}})
}

// BroadcastJSON sends an arbitrary message to all connected clients
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	h.enqueue(Message{Type: messageType, Data: data})
}

// enqueue never blocks: the marker pool calls the surface while holding
// its own lock. A dropped marker message leaves clients out of date, so
// the hub owes them a fresh snapshot once the queue drains.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		switch message.Type {
		case MessageTypeAttach, MessageTypeUpdate, MessageTypeDetach:
			h.resync.Store(true)
		}
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) snapshotSource() SnapshotFunc {
	h.snapshotMu.RLock()
	defer h.snapshotMu.RUnlock()
	return h.snapshot
}

// resyncIfDrained sends every client a fresh snapshot after an overflow,
// once the messages queued ahead of it have been delivered.
func (h *Hub) resyncIfDrained() {
	if len(h.broadcast) > 0 || !h.resync.CompareAndSwap(true, false) {
		return
	}
	fn := h.snapshotSource()
	if fn == nil {
		return
	}
	logging.Info().Msg("resending snapshot after broadcast overflow")
	h.broadcastToClients(Message{Type: MessageTypeSnapshot, Data: fn()})
}

// RunWithContext processes registrations and broadcasts until ctx is
// canceled, then closes every client. It returns ctx.Err().
//
// Lifecycle events are drained before broadcasts so a client registered
// ahead of a change always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
			h.resyncIfDrained()
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")

	fn := h.snapshotSource()
	if fn == nil {
		return
	}
	select {
	case client.send <- Message{Type: MessageTypeSnapshot, Data: fn()}:
		metrics.WSMessagesSent.Inc()
	default:
		metrics.WSErrors.WithLabelValues("snapshot_dropped").Inc()
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err()
// is not logged as an error: cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// sortedClients returns the clients in id order. Caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers a message to every client in id order. A
// client whose queue is full is dropped; it will get a fresh snapshot when
// it reconnects.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped_clients", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
