// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/velomap/internal/cache"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
)

var (
	// ErrExhausted is returned by Serve once the reconnect budget is spent.
	ErrExhausted = errors.New("transport: reconnect attempts exhausted")

	// ErrClosed is returned when an operation needs a live connection.
	ErrClosed = errors.New("transport: not connected")

	// ErrThrottled is returned by RequestBulkReload when called too often.
	ErrThrottled = errors.New("transport: bulk reload throttled")

	// ErrRunning is returned by Serve when the adapter already runs.
	ErrRunning = errors.New("transport: already running")

	errWatchdog = errors.New("no frame within watchdog window")
)

// Handler consumes the body of one routed frame. Returned errors are
// logged; they never affect the connection.
type Handler func(body []byte) error

// Channel names used for routing and metrics.
const (
	ChannelBulk   = "bulk"
	ChannelUpdate = "update"
	ChannelDelete = "delete"
)

// Config configures one Adapter.
type Config struct {
	Kind     models.Kind
	URL      string
	Protocol string

	// STOMP handshake.
	Host     string
	Login    string
	Passcode string

	// BulkTopic receives snapshots. UpdateTopics receive partial records.
	// DeleteTopic, when set, receives eviction notices.
	BulkTopic    string
	UpdateTopics []string
	DeleteTopic  string

	// BulkRequestDestination and BulkRequestBody form the control message
	// sent after every handshake and on RequestBulkReload.
	BulkRequestDestination string
	BulkRequestBody        string

	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	// WatchdogTimeout is the longest silence tolerated on a live
	// connection, heart-beats included.
	WatchdogTimeout time.Duration
	// BulkReloadInterval is the minimum spacing of RequestBulkReload calls.
	BulkReloadInterval time.Duration

	Reconnect ReconnectConfig
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = 3 * c.HeartbeatInterval
	}
	if c.BulkReloadInterval <= 0 {
		c.BulkReloadInterval = 5 * time.Second
	}
}

// Adapter maintains one realtime connection and dispatches its frames.
//
// All frames of a connection are handled in arrival order on the adapter's
// single run goroutine, so handlers never run concurrently with each other.
type Adapter struct {
	cfg     Config
	codec   Codec
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	frames  *cache.WindowCounter
	logger  zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	cancel   context.CancelFunc
	lastErr  error
	onBulk   Handler
	onUpdate Handler
	onDelete Handler
	hooks    []func(from, to State)

	// active counts run loops that have not returned; idle is closed
	// when it drops to zero.
	active int
	idle   chan struct{}

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// routes maps STOMP subscription ids of the current connection to
	// channels.
	routes atomic.Pointer[map[string]string]
}

// New creates an adapter. It does not connect.
func New(cfg Config) (*Adapter, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("invalid transport url %q: want ws:// or wss://", logging.RedactURL(cfg.URL))
	}
	codec, err := NewCodec(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	a := &Adapter{
		cfg:   cfg,
		codec: codec,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     codec.Subprotocols(),
		},
		limiter: rate.NewLimiter(rate.Every(cfg.BulkReloadInterval), 1),
		frames:  cache.NewWindowCounter(time.Minute, 12),
		logger: logging.WithChannel("transport", cfg.Kind).With().
			Str("protocol", codec.Name()).
			Logger(),
	}
	metrics.TransportState.WithLabelValues(string(cfg.Kind)).Set(float64(StateDisconnected))
	return a, nil
}

// OnDelete registers the handler for the delete topic.
func (a *Adapter) OnDelete(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDelete = h
}

// OnStateChange registers a hook called on every state transition.
func (a *Adapter) OnStateChange(hook func(from, to State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook)
}

// SetHandlers registers the bulk and update handlers used by Serve.
func (a *Adapter) SetHandlers(onBulk, onUpdate Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onBulk = onBulk
	a.onUpdate = onUpdate
}

// Connect registers handlers and starts the connection loop in the
// background. It returns without waiting for the handshake. Calling it
// while already running only replaces the handlers.
func (a *Adapter) Connect(ctx context.Context, onBulk, onUpdate Handler) {
	a.SetHandlers(onBulk, onUpdate)

	runCtx, gen, err := a.start(ctx)
	if err != nil {
		return
	}
	go func() {
		_ = a.run(runCtx, gen)
	}()
}

// Serve runs the connection loop until ctx is canceled, Disconnect is
// called, or the reconnect budget is exhausted. It implements
// suture.Service.
func (a *Adapter) Serve(ctx context.Context) error {
	runCtx, gen, err := a.start(ctx)
	if err != nil {
		return err
	}
	return a.run(runCtx, gen)
}

// FramesPerMinute returns the number of routed data frames received over
// the last minute. Heart-beats and control frames are not counted.
func (a *Adapter) FramesPerMinute() int64 {
	return a.frames.Count()
}

// Kind returns the entity kind the adapter streams.
func (a *Adapter) Kind() models.Kind {
	return a.cfg.Kind
}

// String implements fmt.Stringer for supervisor logs.
func (a *Adapter) String() string {
	return "transport-" + string(a.cfg.Kind)
}

func (a *Adapter) start(ctx context.Context) (context.Context, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil, 0, ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.gen++
	a.cancel = cancel
	a.lastErr = nil
	if a.active == 0 {
		a.idle = make(chan struct{})
	}
	a.active++
	return runCtx, a.gen, nil
}

func (a *Adapter) exit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active--
	if a.active == 0 {
		close(a.idle)
	}
}

// Wait blocks until every connection loop has returned, so no handler is
// running or about to run, or until ctx is done. It must not be called
// from a handler.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	if a.active == 0 {
		a.mu.Unlock()
		return nil
	}
	idle := a.idle
	a.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect stops the connection loop, cancels pending reconnect and
// watchdog timers and closes the connection. It is idempotent.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.gen++
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.transition(0, StateDisconnected, true)
}

// IsConnected reports whether a handshaken connection is open.
func (a *Adapter) IsConnected() bool {
	return a.State().Live()
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the error that ended the last run, if any.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// RequestBulkReload asks the backend for a fresh snapshot. The reply
// arrives asynchronously on the bulk topic.
func (a *Adapter) RequestBulkReload() error {
	conn := a.currentConn()
	if conn == nil || !a.IsConnected() {
		return ErrClosed
	}
	if !a.limiter.Allow() {
		metrics.BulkRequests.WithLabelValues(string(a.cfg.Kind), "throttled").Inc()
		return ErrThrottled
	}
	return a.requestBulk(conn)
}

func (a *Adapter) requestBulk(conn *websocket.Conn) error {
	if a.cfg.BulkRequestDestination == "" {
		return nil
	}
	msg, err := a.codec.Send(a.cfg.BulkRequestDestination, []byte(a.cfg.BulkRequestBody))
	if err != nil {
		metrics.BulkRequests.WithLabelValues(string(a.cfg.Kind), "failed").Inc()
		return err
	}
	if err := a.write(conn, msg); err != nil {
		metrics.BulkRequests.WithLabelValues(string(a.cfg.Kind), "failed").Inc()
		return fmt.Errorf("send bulk request: %w", err)
	}
	metrics.BulkRequests.WithLabelValues(string(a.cfg.Kind), "sent").Inc()
	return nil
}

// transition moves to state `to` if gen is current. force skips the
// generation check and is used by Disconnect.
func (a *Adapter) transition(gen uint64, to State, force bool) {
	a.mu.Lock()
	if !force && gen != a.gen {
		a.mu.Unlock()
		return
	}
	from := a.state
	if from == to {
		a.mu.Unlock()
		return
	}
	a.state = to
	hooks := append([]func(from, to State){}, a.hooks...)
	a.mu.Unlock()

	metrics.TransportState.WithLabelValues(string(a.cfg.Kind)).Set(float64(to))
	a.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("transport state changed")
	for _, h := range hooks {
		h(from, to)
	}
}

func (a *Adapter) finish(gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.lastErr = err
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *Adapter) run(ctx context.Context, gen uint64) (err error) {
	defer a.exit()
	defer func() { a.finish(gen, err) }()

	policy := NewReconnectPolicy(a.cfg.Reconnect)
	for {
		a.transition(gen, StateConnecting, false)
		conn, dialErr := a.dial(ctx)
		metrics.RecordConnect(string(a.cfg.Kind), dialErr)

		var sessionErr error
		if dialErr == nil {
			policy.Reset()
			sessionErr = a.session(ctx, gen, conn)
		}

		if ctx.Err() != nil {
			a.transition(gen, StateDisconnected, false)
			return nil
		}

		cause := dialErr
		if cause == nil {
			cause = sessionErr
		}
		delay, ok := policy.Next()
		if !ok {
			a.logger.Error().Err(cause).Int("attempts", policy.Attempts()).Msg("reconnect budget exhausted")
			a.transition(gen, StateFailed, false)
			return ErrExhausted
		}

		a.transition(gen, StateReconnecting, false)
		metrics.RecordReconnect(string(a.cfg.Kind), delay)
		a.logger.Warn().Err(cause).Dur("delay", delay).Int("attempt", policy.Attempts()).Msg("connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.transition(gen, StateDisconnected, false)
			return nil
		case <-timer.C:
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := a.dialer.DialContext(dialCtx, a.cfg.URL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	if err := a.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (a *Adapter) handshake(conn *websocket.Conn) error {
	host := a.cfg.Host
	if host == "" {
		if u, err := url.Parse(a.cfg.URL); err == nil {
			host = u.Hostname()
		}
	}
	hb := strconv.FormatInt(a.cfg.HeartbeatInterval.Milliseconds(), 10)
	greeting, await, err := a.codec.Connect(ConnectOptions{
		Host:      host,
		Login:     a.cfg.Login,
		Passcode:  a.cfg.Passcode,
		HeartBeat: hb + "," + hb,
	})
	if err != nil {
		return err
	}
	if greeting != nil {
		if err := a.write(conn, greeting); err != nil {
			return fmt.Errorf("send connect frame: %w", err)
		}
	}
	if !await {
		return nil
	}

	deadline := time.Now().Add(a.cfg.HandshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await connected frame: %w", err)
		}
		in, err := a.codec.Decode(msg)
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		switch in.Type {
		case FrameConnected:
			a.logger.Debug().Str("server_heart_beat", in.HeartBeat).Msg("handshake complete")
			return nil
		case FrameError:
			return fmt.Errorf("broker rejected connect: %s", in.Message)
		}
	}
}

// session runs one connected lifetime: subscribe, request the bulk
// snapshot, then read until the connection fails, the watchdog fires or
// ctx is canceled.
func (a *Adapter) session(ctx context.Context, gen uint64, conn *websocket.Conn) error {
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return err
	}
	a.setConn(conn)
	defer a.clearConn(conn)

	a.transition(gen, StateConnected, false)
	a.logger.Info().Str("url", logging.RedactURL(a.cfg.URL)).Msg("transport connected")

	if err := a.subscribe(conn); err != nil {
		return err
	}
	if err := a.requestBulk(conn); err != nil {
		a.logger.Warn().Err(err).Msg("initial bulk request failed")
	}

	var timedOut atomic.Bool
	window := a.cfg.WatchdogTimeout
	watchdog := time.AfterFunc(window, func() {
		timedOut.Store(true)
		_ = conn.Close()
	})
	defer watchdog.Stop()

	conn.SetPongHandler(func(string) error {
		watchdog.Reset(window)
		return nil
	})

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go a.keepalive(keepaliveCtx, conn)

	stop := context.AfterFunc(ctx, func() {
		a.goodbye(conn)
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if timedOut.Load() {
				metrics.WatchdogTimeouts.WithLabelValues(string(a.cfg.Kind)).Inc()
				return errWatchdog
			}
			return fmt.Errorf("read: %w", err)
		}
		watchdog.Reset(window)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.transition(gen, StateReceiving, false)
		a.dispatch(msg)
	}
}

func (a *Adapter) subscribe(conn *websocket.Conn) error {
	routes := make(map[string]string)
	add := func(channel, dest string) error {
		if dest == "" {
			return nil
		}
		id := "sub-" + strconv.Itoa(len(routes))
		routes[id] = channel
		msg, err := a.codec.Subscribe(id, dest)
		if err != nil {
			return err
		}
		if err := a.write(conn, msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", dest, err)
		}
		return nil
	}

	if err := add(ChannelBulk, a.cfg.BulkTopic); err != nil {
		return err
	}
	for _, topic := range a.cfg.UpdateTopics {
		if err := add(ChannelUpdate, topic); err != nil {
			return err
		}
	}
	if err := add(ChannelDelete, a.cfg.DeleteTopic); err != nil {
		return err
	}
	a.routes.Store(&routes)
	return nil
}

// route resolves the channel of an inbound message by subscription id,
// then by destination. Envelope frames without a destination are updates.
func (a *Adapter) route(in Inbound) (string, bool) {
	if in.Subscription != "" {
		if routes := a.routes.Load(); routes != nil {
			if ch, ok := (*routes)[in.Subscription]; ok {
				return ch, true
			}
		}
	}
	switch {
	case in.Destination == "":
		return ChannelUpdate, true
	case in.Destination == a.cfg.BulkTopic:
		return ChannelBulk, true
	case in.Destination == a.cfg.DeleteTopic:
		return ChannelDelete, true
	}
	for _, topic := range a.cfg.UpdateTopics {
		if in.Destination == topic {
			return ChannelUpdate, true
		}
	}
	return "", false
}

// dispatch decodes and routes one frame. Nothing raised while handling a
// frame escapes: errors and panics are logged and counted.
func (a *Adapter) dispatch(msg []byte) {
	kind := string(a.cfg.Kind)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDrop(kind, "panic")
			a.logger.Error().Interface("panic", r).Msg("frame handler panicked")
		}
	}()

	in, err := a.codec.Decode(msg)
	if err != nil {
		metrics.RecordDrop(kind, "malformed")
		a.logger.Warn().Err(err).Int("bytes", len(msg)).Msg("malformed frame dropped")
		return
	}

	switch in.Type {
	case FrameHeartbeat:
		metrics.RecordFrame(kind, "heartbeat")
		return
	case FrameError:
		metrics.RecordFrame(kind, "control")
		a.logger.Error().Str("message", in.Message).Msg("broker error frame")
		return
	case FrameConnected, FrameReceipt:
		metrics.RecordFrame(kind, "control")
		return
	}

	channel, ok := a.route(in)
	if !ok {
		metrics.RecordDrop(kind, "unrouted")
		a.logger.Debug().Str("destination", in.Destination).Msg("frame on unknown destination dropped")
		return
	}

	a.mu.Lock()
	var h Handler
	switch channel {
	case ChannelBulk:
		h = a.onBulk
	case ChannelUpdate:
		h = a.onUpdate
	case ChannelDelete:
		h = a.onDelete
	}
	a.mu.Unlock()

	metrics.RecordFrame(kind, channel)
	a.frames.Increment(1)
	if h == nil {
		return
	}
	if err := h(in.Body); err != nil {
		a.logger.Debug().Err(err).Str("channel", channel).Msg("frame handler reported error")
	}
}

func (a *Adapter) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if hb := a.codec.Heartbeat(); hb != nil {
				err = a.write(conn, hb)
			} else {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(a.cfg.WriteTimeout))
			}
			if err != nil {
				a.logger.Debug().Err(err).Msg("keepalive failed")
				return
			}
		}
	}
}

func (a *Adapter) write(conn *websocket.Conn, msg []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// goodbye sends the protocol disconnect and a close message, then closes.
func (a *Adapter) goodbye(conn *websocket.Conn) {
	if bye := a.codec.Disconnect(); bye != nil {
		_ = a.write(conn, bye)
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}

func (a *Adapter) setConn(conn *websocket.Conn) {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	a.conn = conn
}

func (a *Adapter) clearConn(conn *websocket.Conn) {
	a.connMu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.connMu.Unlock()
	a.routes.Store(nil)
	_ = conn.Close()
}

func (a *Adapter) currentConn() *websocket.Conn {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.conn
}
