// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package cache

import (
	"math"
	"sort"
	"sync"

	"github.com/tomtom215/velomap/internal/models"
)

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.0
)

// SpatialIndex buckets positioned values into a uniform lat/lon grid for
// radius queries. Insert, Remove and lookups by id are O(1); a radius query
// visits only the cells overlapping the search box.
type SpatialIndex[V any] struct {
	mu       sync.RWMutex
	cellSize float64 // degrees
	cells    map[cellKey]map[string]struct{}
	entries  map[string]spatialEntry[V]
}

type cellKey struct {
	X, Y int
}

type spatialEntry[V any] struct {
	pos   models.LatLng
	value V
	cell  cellKey
}

// Hit is one result of a radius query.
type Hit[V any] struct {
	ID         string        `json:"id"`
	Position   models.LatLng `json:"position"`
	DistanceKm float64       `json:"distance_km"`
	Value      V             `json:"value"`
}

// NewSpatialIndex creates an index with cells of roughly cellSizeKm. A
// non-positive size defaults to 1 km, which suits city-scale fleets.
func NewSpatialIndex[V any](cellSizeKm float64) *SpatialIndex[V] {
	if cellSizeKm <= 0 {
		cellSizeKm = 1
	}
	return &SpatialIndex[V]{
		cellSize: cellSizeKm / kmPerDegree,
		cells:    make(map[cellKey]map[string]struct{}),
		entries:  make(map[string]spatialEntry[V]),
	}
}

func (s *SpatialIndex[V]) keyFor(pos models.LatLng) cellKey {
	return cellKey{
		X: int(math.Floor(pos.Lng / s.cellSize)),
		Y: int(math.Floor(pos.Lat / s.cellSize)),
	}
}

// Upsert stores value at pos under id, moving it if it already exists.
func (s *SpatialIndex[V]) Upsert(id string, pos models.LatLng, value V) {
	key := s.keyFor(pos)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok && old.cell != key {
		s.removeFromCell(id, old.cell)
	}
	cell, ok := s.cells[key]
	if !ok {
		cell = make(map[string]struct{}, 4)
		s.cells[key] = cell
	}
	cell[id] = struct{}{}
	s.entries[id] = spatialEntry[V]{pos: pos, value: value, cell: key}
}

// Remove deletes id and reports whether it was present.
func (s *SpatialIndex[V]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.removeFromCell(id, e.cell)
	delete(s.entries, id)
	return true
}

// removeFromCell must be called with mu held.
func (s *SpatialIndex[V]) removeFromCell(id string, key cellKey) {
	cell, ok := s.cells[key]
	if !ok {
		return
	}
	delete(cell, id)
	if len(cell) == 0 {
		delete(s.cells, key)
	}
}

// Get returns the position and value stored for id.
func (s *SpatialIndex[V]) Get(id string) (models.LatLng, V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e.pos, e.value, ok
}

// Nearby returns every entry within radiusKm of center, nearest first.
// limit caps the result; zero means no cap.
func (s *SpatialIndex[V]) Nearby(center models.LatLng, radiusKm float64, limit int) []Hit[V] {
	if radiusKm <= 0 {
		return nil
	}

	// Longitude degrees shrink towards the poles.
	latSpan := radiusKm / kmPerDegree
	lonSpan := 360.0
	if c := math.Cos(center.Lat * math.Pi / 180); c > 0.01 {
		lonSpan = latSpan / c
	}
	minKey := s.keyFor(models.LatLng{Lat: center.Lat - latSpan, Lng: center.Lng - lonSpan})
	maxKey := s.keyFor(models.LatLng{Lat: center.Lat + latSpan, Lng: center.Lng + lonSpan})

	s.mu.RLock()
	var hits []Hit[V]
	visit := func(cell map[string]struct{}) {
		for id := range cell {
			e := s.entries[id]
			if d := Haversine(center, e.pos); d <= radiusKm {
				hits = append(hits, Hit[V]{ID: id, Position: e.pos, DistanceKm: d, Value: e.value})
			}
		}
	}
	if cellsInBox := (maxKey.X - minKey.X + 1) * (maxKey.Y - minKey.Y + 1); cellsInBox > len(s.cells) {
		for _, cell := range s.cells {
			visit(cell)
		}
	} else {
		for x := minKey.X; x <= maxKey.X; x++ {
			for y := minKey.Y; y <= maxKey.Y; y++ {
				if cell, ok := s.cells[cellKey{X: x, Y: y}]; ok {
					visit(cell)
				}
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Len returns the number of indexed entries.
func (s *SpatialIndex[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cells returns the number of non-empty cells.
func (s *SpatialIndex[V]) Cells() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Clear removes every entry.
func (s *SpatialIndex[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells = make(map[cellKey]map[string]struct{})
	s.entries = make(map[string]spatialEntry[V])
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
