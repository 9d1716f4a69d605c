// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package markers

import (
	"github.com/tomtom215/velomap/internal/cache"
	"github.com/tomtom215/velomap/internal/models"
)

// Tee forwards every call to each surface in order.
type Tee []Surface

// NewTee drops nil surfaces.
func NewTee(surfaces ...Surface) Tee {
	out := make(Tee, 0, len(surfaces))
	for _, s := range surfaces {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Attach implements Surface.
func (t Tee) Attach(view MarkerView) {
	for _, s := range t {
		s.Attach(view)
	}
}

// Update implements Surface.
func (t Tee) Update(view MarkerView) {
	for _, s := range t {
		s.Update(view)
	}
}

// Detach implements Surface.
func (t Tee) Detach(kind models.Kind, id string) {
	for _, s := range t {
		s.Detach(kind, id)
	}
}

// SpatialSurface mirrors attached markers into a spatial index so the API
// can answer "what is near this point" without touching the live caches.
type SpatialSurface struct {
	index *cache.SpatialIndex[MarkerView]
}

// NewSpatialSurface creates a surface over a fresh index with the given
// cell size.
func NewSpatialSurface(cellSizeKm float64) *SpatialSurface {
	return &SpatialSurface{index: cache.NewSpatialIndex[MarkerView](cellSizeKm)}
}

// Attach implements Surface.
func (s *SpatialSurface) Attach(view MarkerView) {
	s.index.Upsert(surfaceKey(view.Kind, view.ID), view.Position, view)
}

// Update implements Surface.
func (s *SpatialSurface) Update(view MarkerView) {
	s.index.Upsert(surfaceKey(view.Kind, view.ID), view.Position, view)
}

// Detach implements Surface.
func (s *SpatialSurface) Detach(kind models.Kind, id string) {
	s.index.Remove(surfaceKey(kind, id))
}

// Nearby returns attached markers of kind within radiusKm of center,
// nearest first. An empty kind matches both kinds. limit <= 0 means no
// limit.
func (s *SpatialSurface) Nearby(kind models.Kind, center models.LatLng, radiusKm float64, limit int) []cache.Hit[MarkerView] {
	if kind == "" {
		return s.index.Nearby(center, radiusKm, limit)
	}
	hits := s.index.Nearby(center, radiusKm, 0)
	out := make([]cache.Hit[MarkerView], 0, len(hits))
	for _, h := range hits {
		if h.Value.Kind != kind {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of indexed markers.
func (s *SpatialSurface) Len() int {
	return s.index.Len()
}
