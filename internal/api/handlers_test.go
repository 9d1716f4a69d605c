// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/velomap/internal/livemap"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/middleware"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/transport"
	ws "github.com/tomtom215/velomap/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// fakeChannel is an in-memory Channel.
type fakeChannel struct {
	kind      models.Kind
	records   map[string]any
	order     []string
	connected bool
	reloadErr error
	reloads   int
}

func (f *fakeChannel) Kind() models.Kind { return f.kind }

func (f *fakeChannel) Status() livemap.Status {
	state := transport.StateDisconnected
	if f.connected {
		state = transport.StateConnected
	}
	return livemap.Status{Kind: f.kind, State: state.String(), Connected: f.connected, CacheEntries: len(f.records)}
}

func (f *fakeChannel) Markers() []markers.MarkerView {
	return []markers.MarkerView{{Kind: f.kind, ID: "7", Position: models.LatLng{Lat: 40.41, Lng: -3.70}}}
}

func (f *fakeChannel) RequestBulkReload() error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeChannel) Record(id string) (any, bool) {
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeChannel) Records() []any {
	out := make([]any, len(f.order))
	for i, id := range f.order {
		out[i] = f.records[id]
	}
	return out
}

func newFakeStations(n int) *fakeChannel {
	f := &fakeChannel{kind: models.KindStation, records: map[string]any{}, connected: true}
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		f.records[id] = map[string]string{"id": id}
		f.order = append(f.order, id)
	}
	return f
}

func newTestRouter(deps Deps) http.Handler {
	return NewRouter(NewHandler(deps, nil), RouterConfig{
		Middleware:     MiddlewareConfig{RateLimitWindow: time.Minute},
		MetricsEnabled: true,
	})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestRouter_StatusCodes(t *testing.T) {
	t.Parallel()

	stations := newFakeStations(3)
	router := newTestRouter(Deps{Channels: []Channel{stations}})

	tests := []struct {
		method, target string
		want           int
		code           string
	}{
		{http.MethodGet, "/health", http.StatusOK, ""},
		{http.MethodGet, "/health/ready", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/status", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/stations", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/stations/b", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/stations/zz", http.StatusNotFound, ErrCodeNotFound},
		{http.MethodGet, "/api/v1/bicycles", http.StatusNotFound, ErrCodeNotFound},
		{http.MethodGet, "/api/v1/scooters", http.StatusNotFound, ErrCodeNotFound},
		{http.MethodGet, "/api/v1/stations/markers", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/stations?limit=abc", http.StatusBadRequest, ErrCodeBadRequest},
		{http.MethodGet, "/api/v1/stations?limit=0", http.StatusBadRequest, ErrCodeValidationFailed},
		{http.MethodGet, "/api/v1/stations/nearby?lat=1&lng=1", http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{http.MethodGet, "/ws", http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{http.MethodPut, "/api/v1/stations/reload", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{http.MethodGet, "/nowhere", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			t.Parallel()
			rec, env := do(t, router, tt.method, tt.target)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.code != "" && (env.Error == nil || env.Error.Code != tt.code) {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestListRecords_Pagination(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Deps{Channels: []Channel{newFakeStations(5)}})
	_, env := do(t, router, http.MethodGet, "/api/v1/stations?limit=2&offset=2")

	var page []map[string]string
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0]["id"] != "c" || page[1]["id"] != "d" {
		t.Errorf("page = %v", page)
	}
	p := env.Meta.Pagination
	if p == nil || p.Total != 5 || p.Count != 2 || !p.HasMore {
		t.Errorf("pagination = %+v", p)
	}

	_, env = do(t, router, http.MethodGet, "/api/v1/stations?offset=10")
	if env.Meta.Pagination.Count != 0 || env.Meta.Pagination.HasMore {
		t.Errorf("offset past end pagination = %+v", env.Meta.Pagination)
	}
}

func TestReady_NoLiveChannel(t *testing.T) {
	t.Parallel()

	stations := newFakeStations(0)
	stations.connected = false
	router := newTestRouter(Deps{Channels: []Channel{stations}})

	rec, env := do(t, router, http.MethodGet, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable || env.Success {
		t.Fatalf("status = %d success = %v", rec.Code, env.Success)
	}
	if !bytes.Contains(env.Data, []byte(`"stations":"disconnected"`)) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestReload_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"throttled", transport.ErrThrottled, http.StatusTooManyRequests},
		{"not connected", transport.ErrClosed, http.StatusServiceUnavailable},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stations := newFakeStations(0)
			stations.reloadErr = tt.err
			router := newTestRouter(Deps{Channels: []Channel{stations}})

			rec, _ := do(t, router, http.MethodPost, "/api/v1/stations/reload")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if stations.reloads != 1 {
				t.Errorf("reloads = %d", stations.reloads)
			}
		})
	}
}

type fakeNATS bool

func (f fakeNATS) IsConnected() bool { return bool(f) }

func TestStatus_ReportsFanOut(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Deps{
		Channels: []Channel{newFakeStations(2)},
		Hub:      ws.NewHub(),
		NATS:     fakeNATS(true),
		Version:  "1.2.3",
	})
	_, env := do(t, router, http.MethodGet, "/api/v1/status")

	var st StatusResponse
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Version != "1.2.3" || len(st.Channels) != 1 || st.Channels[0].CacheEntries != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.NATSConnected == nil || !*st.NATSConnected {
		t.Errorf("nats_connected = %v", st.NATSConnected)
	}
}

func TestRequestID_EchoedAndInBody(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Deps{Channels: []Channel{newFakeStations(0)}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/missing", http.NoBody)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"request_id":"req-42"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"same host", nil, "http://example.com", true},
		{"foreign", nil, "https://evil.test", false},
		{"listed", []string{"https://map.example.org"}, "https://map.example.org", true},
		{"wildcard", []string{"*"}, "https://evil.test", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", http.NoBody)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(req); got != tt.want {
			t.Errorf("%s: originChecker = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPerformance_RecordsAPIRoutes(t *testing.T) {
	t.Parallel()

	perf := middleware.NewPerformanceMonitor(100, 0)
	router := NewRouter(NewHandler(Deps{Channels: []Channel{newFakeStations(1)}, Performance: perf}, nil), RouterConfig{
		Middleware: MiddlewareConfig{RateLimitWindow: time.Minute},
		Compress:   true,
	})

	do(t, router, http.MethodGet, "/api/v1/stations/a")
	do(t, router, http.MethodGet, "/api/v1/stations/b")

	stats := perf.Stats()
	if len(stats) != 1 || stats[0].Route != "GET /api/v1/{kind}/{id}" || stats[0].RequestCount != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	rec, env := do(t, router, http.MethodGet, "/api/v1/performance")
	if rec.Code != http.StatusOK || !bytes.Contains(env.Data, []byte(`"routes"`)) {
		t.Errorf("performance = %d %s", rec.Code, env.Data)
	}

	rec, _ = do(t, newTestRouter(Deps{Channels: []Channel{newFakeStations(0)}}), http.MethodGet, "/api/v1/performance")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without monitor = %d", rec.Code)
	}
}
