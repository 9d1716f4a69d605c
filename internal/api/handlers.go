// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/velomap/internal/livemap"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/middleware"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/transport"
	"github.com/tomtom215/velomap/internal/validation"
	ws "github.com/tomtom215/velomap/internal/websocket"
)

const (
	defaultListLimit   = 1000
	defaultNearbyLimit = 50
	defaultRadiusKm    = 1.0
)

// Deps are the components the handlers read from. Only Channels is
// required.
type Deps struct {
	Channels []Channel
	Nearby   NearbyIndex
	Hub      *ws.Hub
	NATS     ConnectionStatus
	Version  string

	// Performance records /api/v1 latency when set.
	Performance *middleware.PerformanceMonitor
}

// Handler serves the map state API.
type Handler struct {
	channels map[models.Kind]Channel
	order    []Channel
	nearby   NearbyIndex
	hub      *ws.Hub
	upgrader websocket.Upgrader
	nats     ConnectionStatus
	perf     *middleware.PerformanceMonitor
	version  string
	started  time.Time
}

// NewHandler builds the handler. allowedOrigins bounds WebSocket upgrades
// the same way CORS bounds XHR.
func NewHandler(deps Deps, allowedOrigins []string) *Handler {
	h := &Handler{
		channels: make(map[models.Kind]Channel, len(deps.Channels)),
		nearby:   deps.Nearby,
		hub:      deps.Hub,
		upgrader: ws.Upgrader(originChecker(allowedOrigins)),
		nats:     deps.NATS,
		perf:     deps.Performance,
		version:  deps.Version,
		started:  time.Now(),
	}
	for _, ch := range deps.Channels {
		if ch == nil {
			continue
		}
		h.channels[ch.Kind()] = ch
		h.order = append(h.order, ch)
	}
	return h
}

// channel resolves the {kind} URL parameter. It writes the error response
// and returns nil when the kind is unknown or not configured.
func (h *Handler) channel(w http.ResponseWriter, r *http.Request) Channel {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		NewResponseWriter(w, r).NotFound(err.Error())
		return nil
	}
	ch, ok := h.channels[kind]
	if !ok {
		NewResponseWriter(w, r).NotFound("channel " + string(kind) + " is not enabled")
		return nil
	}
	return ch
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Ready reports 200 while at least one channel has a live connection.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	states := make(map[models.Kind]string, len(h.order))
	ready := false
	for _, ch := range h.order {
		st := ch.Status()
		states[ch.Kind()] = st.State
		ready = ready || st.Connected
	}
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).Status(code, map[string]interface{}{
		"status":   status,
		"channels": states,
	})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version          string           `json:"version,omitempty"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	Channels         []livemap.Status `json:"channels"`
	WebSocketClients int              `json:"websocket_clients"`
	SpatialEntries   int              `json:"spatial_entries"`
	NATSConnected    *bool            `json:"nats_connected,omitempty"`
}

// Status summarizes every channel and fan-out link.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Channels:      make([]livemap.Status, 0, len(h.order)),
	}
	for _, ch := range h.order {
		resp.Channels = append(resp.Channels, ch.Status())
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.GetClientCount()
	}
	if h.nearby != nil {
		resp.SpatialEntries = h.nearby.Len()
	}
	if h.nats != nil {
		connected := h.nats.IsConnected()
		resp.NATSConnected = &connected
	}
	NewResponseWriter(w, r).Success(resp)
}

// Performance reports latency percentiles per route over the retained
// window.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.perf == nil {
		rw.ServiceUnavailable("performance monitoring is disabled")
		return
	}
	rw.Success(map[string]interface{}{
		"samples": h.perf.Len(),
		"routes":  h.perf.Stats(),
	})
}

type listQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=10000"`
	Offset int `query:"offset" validate:"min=0"`
}

// ListRecords returns a page of merged records ordered by id.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ch := h.channel(w, r)
	if ch == nil {
		return
	}
	rw := NewResponseWriter(w, r)

	q := listQuery{Limit: defaultListLimit}
	var err error
	if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if q.Offset, err = intParam(r, "offset", 0); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	all := ch.Records()
	start := min(q.Offset, len(all))
	end := min(start+q.Limit, len(all))
	rw.SuccessWithPagination(all[start:end], &PaginationMeta{
		Total:   len(all),
		Count:   end - start,
		Offset:  q.Offset,
		Limit:   q.Limit,
		HasMore: end < len(all),
	})
}

// GetRecord returns one merged record.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ch := h.channel(w, r)
	if ch == nil {
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok := ch.Record(id)
	if !ok {
		NewResponseWriter(w, r).NotFound(string(ch.Kind()) + " " + strconv.Quote(id) + " not found")
		return
	}
	NewResponseWriter(w, r).Success(rec)
}

// ListMarkers returns the render view of every pooled marker.
func (h *Handler) ListMarkers(w http.ResponseWriter, r *http.Request) {
	ch := h.channel(w, r)
	if ch == nil {
		return
	}
	NewResponseWriter(w, r).Success(ch.Markers())
}

type nearbyQuery struct {
	Lat      float64 `query:"lat" validate:"latitude"`
	Lng      float64 `query:"lng" validate:"longitude"`
	RadiusKm float64 `query:"radius_km" validate:"gt=0,lte=50"`
	Limit    int     `query:"limit" validate:"min=1,max=1000"`
}

// Nearby returns markers within radius_km of lat/lng, nearest first. On
// /api/v1/nearby every kind is searched.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if chi.URLParam(r, "kind") != "" {
		ch := h.channel(w, r)
		if ch == nil {
			return
		}
		kind = ch.Kind()
	}
	rw := NewResponseWriter(w, r)
	if h.nearby == nil {
		rw.ServiceUnavailable("spatial index is disabled")
		return
	}

	if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lng") == "" {
		rw.BadRequest("lat and lng are required")
		return
	}
	q := nearbyQuery{RadiusKm: defaultRadiusKm, Limit: defaultNearbyLimit}
	var err error
	if q.Lat, err = floatParam(r, "lat", 0); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if q.Lng, err = floatParam(r, "lng", 0); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if q.RadiusKm, err = floatParam(r, "radius_km", q.RadiusKm); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	hits := h.nearby.Nearby(kind, models.LatLng{Lat: q.Lat, Lng: q.Lng}, q.RadiusKm, q.Limit)
	rw.Success(hits)
}

// Reload asks the upstream for a fresh bulk snapshot. The snapshot arrives
// asynchronously; 202 means the request frame was sent.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	ch := h.channel(w, r)
	if ch == nil {
		return
	}
	rw := NewResponseWriter(w, r)
	err := ch.RequestBulkReload()
	switch {
	case err == nil:
		logging.Ctx(r.Context()).Info().Str("kind", string(ch.Kind())).Msg("bulk reload requested")
		rw.Accepted(map[string]interface{}{"kind": ch.Kind(), "requested": true})
	case errors.Is(err, transport.ErrThrottled):
		rw.TooManyRequests(err.Error())
	case errors.Is(err, transport.ErrClosed):
		rw.ServiceUnavailable(err.Error())
	default:
		rw.InternalError(err)
	}
}

// ServeWS upgrades to the marker stream.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("websocket stream is disabled")
		return
	}
	ws.ServeWS(h.hub, &h.upgrader, w, r)
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

func floatParam(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New(key + " must be a number")
	}
	return v, nil
}

// originChecker allows requests without an Origin header, same-host
// origins, and the configured list ("*" allows all).
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, allowAll := set["*"]
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
