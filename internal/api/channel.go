// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package api

import (
	"sort"

	"github.com/tomtom215/velomap/internal/cache"
	"github.com/tomtom215/velomap/internal/flyweight"
	"github.com/tomtom215/velomap/internal/livemap"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/models"
)

// Channel is the view of one live channel served over HTTP.
type Channel interface {
	Kind() models.Kind
	Status() livemap.Status
	Markers() []markers.MarkerView
	RequestBulkReload() error
	// Record returns the merged record for id.
	Record(id string) (any, bool)
	// Records returns every merged record ordered by id.
	Records() []any
}

// NearbyIndex answers radius queries over the pooled markers.
type NearbyIndex interface {
	Nearby(kind models.Kind, center models.LatLng, radiusKm float64, limit int) []cache.Hit[markers.MarkerView]
	Len() int
}

// ConnectionStatus is implemented by optional outbound links (NATS).
type ConnectionStatus interface {
	IsConnected() bool
}

type liveChannel[T any, K flyweight.Key] struct {
	ch *livemap.Channel[T, K]
}

// Live adapts a livemap channel.
func Live[T any, K flyweight.Key](ch *livemap.Channel[T, K]) Channel {
	return liveChannel[T, K]{ch: ch}
}

func (c liveChannel[T, K]) Kind() models.Kind             { return c.ch.Kind() }
func (c liveChannel[T, K]) Status() livemap.Status        { return c.ch.Status() }
func (c liveChannel[T, K]) Markers() []markers.MarkerView { return c.ch.Markers() }
func (c liveChannel[T, K]) RequestBulkReload() error      { return c.ch.RequestBulkReload() }

func (c liveChannel[T, K]) Record(id string) (any, bool) {
	rec, ok := c.ch.Get(id)
	if !ok {
		return nil, false
	}
	return rec, true
}

func (c liveChannel[T, K]) Records() []any {
	snap := c.ch.Cache()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = snap[id]
	}
	return out
}
