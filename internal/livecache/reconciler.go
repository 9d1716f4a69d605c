// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package livecache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/normalize"
)

// Drop reasons reported on velomap_frames_dropped_total.
const (
	ReasonMalformed      = "malformed"
	ReasonUnidentifiable = "unidentifiable"
	ReasonDecode         = "decode"
)

// Codec binds the reconciler to one entity kind.
type Codec[T any] struct {
	Kind      models.Kind
	ResolveID func(normalize.Payload) (string, bool)
	Decode    func(p normalize.Payload, prev *T) (T, error)
	IDOf      func(T) string
	Locate    func(T) (models.LatLng, bool)
}

// StationCodec returns the codec for stations.
func StationCodec() Codec[models.Station] {
	return Codec[models.Station]{
		Kind:      models.KindStation,
		ResolveID: normalize.StationID,
		Decode:    normalize.DecodeStation,
		IDOf:      models.Station.EntityID,
		Locate:    models.Station.Location,
	}
}

// BicycleCodec returns the codec for bicycles.
func BicycleCodec() Codec[models.Bicycle] {
	return Codec[models.Bicycle]{
		Kind:      models.KindBicycle,
		ResolveID: normalize.BicycleID,
		Decode:    normalize.DecodeBicycle,
		IDOf:      models.Bicycle.EntityID,
		Locate:    models.Bicycle.Location,
	}
}

// Renderer is the subset of the marker pool the reconciler drives.
type Renderer[T any] interface {
	GetOrCreate(entity T) (*markers.Proxy[T], bool)
	Remove(id string) bool
	Clear()
	Size() int
}

// ReferenceStore is a read-only secondary source consulted when the cache
// has no entry for an id.
type ReferenceStore[T any] interface {
	GetByID(id string) (T, bool)
}

// Observer receives every successfully merged or seeded record.
type Observer[T any] func(id string, merged T)

type entry[T any] struct {
	record T
	// positioned is true once the entity has ever had valid coordinates.
	positioned bool
	seen       time.Time
}

// Reconciler owns the live cache of one entity kind and keeps the marker
// pool in step with it.
type Reconciler[T any] struct {
	codec Codec[T]
	pool  Renderer[T]
	ref   ReferenceStore[T]
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry[T]

	obsMu     sync.RWMutex
	observers map[uint64]Observer[T]
	nextObs   uint64

	logger zerolog.Logger
}

// New creates a reconciler. ref may be nil.
func New[T any](codec Codec[T], pool Renderer[T], ref ReferenceStore[T]) *Reconciler[T] {
	return &Reconciler[T]{
		codec:     codec,
		pool:      pool,
		ref:       ref,
		now:       time.Now,
		entries:   make(map[string]*entry[T]),
		observers: make(map[uint64]Observer[T]),
		logger:    logging.WithChannel("livecache", codec.Kind),
	}
}

// Kind returns the entity kind.
func (r *Reconciler[T]) Kind() models.Kind {
	return r.codec.Kind
}

// Subscribe registers an observer and returns a function removing it.
func (r *Reconciler[T]) Subscribe(obs Observer[T]) (unsubscribe func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = obs
	r.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.obsMu.Lock()
			delete(r.observers, id)
			r.obsMu.Unlock()
		})
	}
}

func (r *Reconciler[T]) notify(id string, merged T) {
	r.obsMu.RLock()
	observers := make([]Observer[T], 0, len(r.observers))
	for _, obs := range r.observers {
		observers = append(observers, obs)
	}
	r.obsMu.RUnlock()

	for _, obs := range observers {
		obs(id, merged)
	}
}

// Seed applies authoritative records. Each record replaces any cached entry
// for its id without merging; renderable records create or update their
// proxy.
func (r *Reconciler[T]) Seed(records []T) {
	applied := make([]T, 0, len(records))

	r.mu.Lock()
	for _, rec := range records {
		id := r.codec.IDOf(rec)
		if id == "" {
			continue
		}
		_, hasPos := r.codec.Locate(rec)
		e := &entry[T]{record: rec, positioned: hasPos, seen: r.now()}
		if prev, ok := r.entries[id]; ok && prev.positioned {
			e.positioned = true
		}
		r.entries[id] = e
		applied = append(applied, rec)
	}
	r.updateGauge()
	r.mu.Unlock()

	for _, rec := range applied {
		r.render(rec)
	}
	metrics.Merges.WithLabelValues(string(r.codec.Kind), "seed").Add(float64(len(applied)))
	for _, rec := range applied {
		r.notify(r.codec.IDOf(rec), rec)
	}
}

// Replace seeds records and then evicts every cached id absent from them.
func (r *Reconciler[T]) Replace(records []T) {
	keep := make(map[string]struct{}, len(records))
	for _, rec := range records {
		keep[r.codec.IDOf(rec)] = struct{}{}
	}
	r.Seed(records)

	r.mu.RLock()
	var stale []string
	for id := range r.entries {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Evict(id)
	}
}

// SeedPayloads decodes each payload without fallback and seeds the
// results. Undecodable payloads are dropped. It returns the number seeded.
func (r *Reconciler[T]) SeedPayloads(payloads []normalize.Payload) int {
	records := r.decodeAll(payloads)
	r.Seed(records)
	return len(records)
}

// ReplacePayloads is SeedPayloads followed by eviction of absent ids.
func (r *Reconciler[T]) ReplacePayloads(payloads []normalize.Payload) int {
	records := r.decodeAll(payloads)
	r.Replace(records)
	return len(records)
}

func (r *Reconciler[T]) decodeAll(payloads []normalize.Payload) []T {
	records := make([]T, 0, len(payloads))
	for _, p := range payloads {
		rec, err := r.codec.Decode(p, nil)
		if err != nil {
			r.drop(err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Merge applies a partial payload. Omitted fields fall back to the cached
// record, then to the reference store, then to defaults.
//
// A merged record without coordinates for an id that was never positioned
// updates the cache only. Otherwise the proxy is created or updated. Every
// successful merge is delivered to observers.
func (r *Reconciler[T]) Merge(p normalize.Payload) (T, error) {
	var zero T

	id, ok := r.codec.ResolveID(p)
	if !ok {
		r.drop(normalize.ErrUnidentifiable)
		return zero, normalize.ErrUnidentifiable
	}

	// Serialized per kind by the transport event loop; the write lock
	// covers concurrent readers only.
	r.mu.Lock()
	var prev *T
	positioned := false
	if e, ok := r.entries[id]; ok {
		rec := e.record
		prev = &rec
		positioned = e.positioned
	} else if r.ref != nil {
		if rec, ok := r.ref.GetByID(id); ok {
			prev = &rec
		}
	}

	merged, err := r.codec.Decode(p, prev)
	if err != nil {
		r.mu.Unlock()
		r.drop(err)
		return zero, fmt.Errorf("decode %s %s: %w", r.codec.Kind, id, err)
	}

	_, hasPos := r.codec.Locate(merged)
	r.entries[id] = &entry[T]{record: merged, positioned: positioned || hasPos, seen: r.now()}
	r.updateGauge()
	r.mu.Unlock()

	// A proxy that exists keeps its last position when this update has
	// none.
	if hasPos || positioned {
		r.render(merged)
		metrics.Merges.WithLabelValues(string(r.codec.Kind), "rendered").Inc()
	} else {
		metrics.Merges.WithLabelValues(string(r.codec.Kind), "deferred").Inc()
		r.logger.Debug().Str("id", id).Msg("update without coordinates, proxy deferred")
	}

	r.notify(id, merged)
	return merged, nil
}

func (r *Reconciler[T]) render(rec T) {
	if r.pool == nil {
		return
	}
	r.pool.GetOrCreate(rec)
}

func (r *Reconciler[T]) drop(err error) {
	reason := ReasonDecode
	switch {
	case errors.Is(err, normalize.ErrUnidentifiable):
		reason = ReasonUnidentifiable
	case errors.Is(err, normalize.ErrMalformed):
		reason = ReasonMalformed
	}
	metrics.FramesDropped.WithLabelValues(string(r.codec.Kind), reason).Inc()
	r.logger.Warn().Err(err).Str("reason", reason).Msg("frame dropped")
}

// Evict removes the cache entry and the proxy for id. It reports whether
// an entry existed.
func (r *Reconciler[T]) Evict(id string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.updateGauge()
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.Remove(id)
	}
	return ok
}

// Clear empties the cache and the pool.
func (r *Reconciler[T]) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*entry[T])
	r.updateGauge()
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.Clear()
	}
}

// SweepStale evicts entries that never had coordinates and have not been
// seen for longer than maxAge. It returns the evicted ids.
func (r *Reconciler[T]) SweepStale(maxAge time.Duration) []string {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if !e.positioned && e.seen.Before(cutoff) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.updateGauge()
	r.mu.Unlock()

	if len(evicted) > 0 {
		metrics.StaleEvictions.WithLabelValues(string(r.codec.Kind)).Add(float64(len(evicted)))
		r.logger.Info().Int("count", len(evicted)).Dur("max_age", maxAge).Msg("swept never-positioned entries")
	}
	return evicted
}

// Get returns the cached record for id.
func (r *Reconciler[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.record, true
	}
	var zero T
	return zero, false
}

// Len returns the number of cached entries.
func (r *Reconciler[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of the cache.
func (r *Reconciler[T]) Snapshot() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]T, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.record
	}
	return out
}

// updateGauge must be called with mu held.
func (r *Reconciler[T]) updateGauge() {
	metrics.CacheEntries.WithLabelValues(string(r.codec.Kind)).Set(float64(len(r.entries)))
}
