// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package livemap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/velomap/internal/flyweight"
	"github.com/tomtom215/velomap/internal/livecache"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/transport"
)

// Options configure one Channel.
type Options struct {
	Transport transport.Config

	// PruneOnBulk evicts cached ids absent from a bulk snapshot.
	PruneOnBulk bool

	// StaleAfter enables sweeping of entries that never had coordinates
	// and were last seen longer ago. Zero disables the sweep.
	StaleAfter time.Duration

	// Preload materializes every descriptor of the kind at construction.
	Preload bool
}

// Channel is the live map state of one entity kind: a transport adapter
// feeding a reconciler, which drives a marker pool through a flyweight
// registry.
type Channel[T any, K flyweight.Key] struct {
	kind    models.Kind
	adapter *transport.Adapter
	cache   *livecache.Reconciler[T]
	feed    *livecache.Feed[T]
	pool    *markers.Pool[T, K]
	opts    Options
	logger  zerolog.Logger
}

// Stations is the channel type for docking stations.
type Stations = Channel[models.Station, flyweight.StationClass]

// Bicycles is the channel type for bicycles.
type Bicycles = Channel[models.Bicycle, flyweight.BicycleClass]

// New assembles a channel. ref may be nil.
func New[T any, K flyweight.Key](
	codec livecache.Codec[T],
	pool markers.Config[T, K],
	ref livecache.ReferenceStore[T],
	opts Options,
) (*Channel[T, K], error) {
	if pool.Kind == "" {
		pool.Kind = codec.Kind
	}
	if pool.Kind != codec.Kind {
		return nil, fmt.Errorf("livemap: pool kind %q does not match codec kind %q", pool.Kind, codec.Kind)
	}
	opts.Transport.Kind = codec.Kind

	adapter, err := transport.New(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("livemap %s: %w", codec.Kind, err)
	}

	p := markers.NewPool(pool)
	cache := livecache.New[T](codec, p, ref)
	feed := livecache.NewFeed(cache, opts.PruneOnBulk)

	c := &Channel[T, K]{
		kind:    codec.Kind,
		adapter: adapter,
		cache:   cache,
		feed:    feed,
		pool:    p,
		opts:    opts,
		logger:  logging.WithChannel("livemap", codec.Kind),
	}

	adapter.SetHandlers(feed.Bulk, feed.Update)
	adapter.OnDelete(feed.Delete)
	adapter.OnStateChange(func(from, to transport.State) {
		c.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("channel state changed")
	})
	cache.Subscribe(func(string, T) {
		metrics.Descriptors.WithLabelValues(string(c.kind)).Set(float64(p.Descriptors()))
	})
	return c, nil
}

// NewStations builds the station channel. surface and ref may be nil.
func NewStations(opts Options, surface markers.Surface, ref livecache.ReferenceStore[models.Station]) (*Stations, error) {
	registry := flyweight.NewStationRegistry()
	if opts.Preload {
		registry.Preload(flyweight.AllStationClasses...)
	}
	codec := livecache.StationCodec()
	return New(codec, markers.Config[models.Station, flyweight.StationClass]{
		Kind:     codec.Kind,
		Registry: registry,
		Classify: flyweight.ClassifyStation,
		IDOf:     codec.IDOf,
		Locate:   codec.Locate,
		Surface:  surface,
	}, ref, opts)
}

// NewBicycles builds the bicycle channel. surface and ref may be nil.
func NewBicycles(opts Options, surface markers.Surface, ref livecache.ReferenceStore[models.Bicycle]) (*Bicycles, error) {
	registry := flyweight.NewBicycleRegistry()
	if opts.Preload {
		registry.Preload(flyweight.AllBicycleClasses()...)
	}
	codec := livecache.BicycleCodec()
	return New(codec, markers.Config[models.Bicycle, flyweight.BicycleClass]{
		Kind:     codec.Kind,
		Registry: registry,
		Classify: flyweight.ClassifyBicycle,
		IDOf:     codec.IDOf,
		Locate:   codec.Locate,
		Surface:  surface,
	}, ref, opts)
}

// Kind returns the entity kind.
func (c *Channel[T, K]) Kind() models.Kind { return c.kind }

// Connect starts the transport in the background and returns immediately.
func (c *Channel[T, K]) Connect(ctx context.Context) {
	c.adapter.Connect(ctx, c.feed.Bulk, c.feed.Update)
}

// Disconnect stops the transport. The cache and pool are kept.
func (c *Channel[T, K]) Disconnect() {
	c.adapter.Disconnect()
}

// closeWait bounds how long Close waits for the transport to stop.
const closeWait = 5 * time.Second

// Close disconnects, waits for the frame in flight to finish, then clears
// the cache and pool, detaching every marker. If the transport does not
// stop within closeWait the cache is left as it is. Close must not be
// called from an observer or surface callback.
func (c *Channel[T, K]) Close() {
	c.adapter.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), closeWait)
	defer cancel()
	if err := c.adapter.Wait(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("transport still running, cache not cleared")
		return
	}
	c.cache.Clear()
}

// RequestBulkReload asks the backend for a fresh snapshot.
func (c *Channel[T, K]) RequestBulkReload() error {
	return c.adapter.RequestBulkReload()
}

// IsConnected reports whether the transport has a live connection.
func (c *Channel[T, K]) IsConnected() bool {
	return c.adapter.IsConnected()
}

// Cache returns a snapshot of the live cache.
func (c *Channel[T, K]) Cache() map[string]T {
	return c.cache.Snapshot()
}

// Get returns the cached record for id.
func (c *Channel[T, K]) Get(id string) (T, bool) {
	return c.cache.Get(id)
}

// MarkerPool returns the channel's marker pool.
func (c *Channel[T, K]) MarkerPool() *markers.Pool[T, K] {
	return c.pool
}

// Subscribe registers an observer for every merged or seeded record.
func (c *Channel[T, K]) Subscribe(obs livecache.Observer[T]) (unsubscribe func()) {
	return c.cache.Subscribe(obs)
}

// Transport exposes the adapter for supervision.
func (c *Channel[T, K]) Transport() *transport.Adapter {
	return c.adapter
}

// Reconciler exposes the live cache for supervision and tests.
func (c *Channel[T, K]) Reconciler() *livecache.Reconciler[T] {
	return c.cache
}

// StaleAfter returns the configured sweep age, zero when disabled.
func (c *Channel[T, K]) StaleAfter() time.Duration {
	return c.opts.StaleAfter
}

// Sweep evicts stale never-positioned entries. It is a no-op when
// StaleAfter is zero.
func (c *Channel[T, K]) Sweep() []string {
	if c.opts.StaleAfter <= 0 {
		return nil
	}
	return c.cache.SweepStale(c.opts.StaleAfter)
}

// Status is a point-in-time summary of a channel.
type Status struct {
	Kind         models.Kind `json:"kind"`
	State        string      `json:"state"`
	Connected    bool        `json:"connected"`
	CacheEntries int         `json:"cache_entries"`
	Markers      int         `json:"markers"`
	Descriptors  int         `json:"descriptors"`
	// FramesPerMinute counts routed data frames over the last minute.
	FramesPerMinute int64  `json:"frames_per_minute"`
	LastError       string `json:"last_error,omitempty"`
}

// Status returns the channel summary.
func (c *Channel[T, K]) Status() Status {
	st := Status{
		Kind:         c.kind,
		State:        c.adapter.State().String(),
		Connected:    c.adapter.IsConnected(),
		CacheEntries: c.cache.Len(),
		Markers:      c.pool.Size(),
		Descriptors:  c.pool.Descriptors(),

		FramesPerMinute: c.adapter.FramesPerMinute(),
	}
	if err := c.adapter.Err(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Markers returns the render view of every pooled marker.
func (c *Channel[T, K]) Markers() []markers.MarkerView {
	return c.pool.Views()
}
