// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package markers

import (
	"sort"
	"sync"

	"github.com/tomtom215/velomap/internal/flyweight"
	"github.com/tomtom215/velomap/internal/models"
)

// MarkerView is the render surface representation of one proxy: the shared
// descriptor plus the extrinsic state of the entity.
type MarkerView struct {
	Kind       models.Kind    `json:"kind"`
	ID         string         `json:"id"`
	Position   models.LatLng  `json:"position"`
	Descriptor flyweight.View `json:"descriptor"`
	State      interface{}    `json:"state"`
}

// Surface is the external render target. Implementations must tolerate
// Update calls for markers already showing the given state.
type Surface interface {
	Attach(view MarkerView)
	Update(view MarkerView)
	Detach(kind models.Kind, id string)
}

// NopSurface discards every call.
type NopSurface struct{}

func (NopSurface) Attach(MarkerView)          {}
func (NopSurface) Update(MarkerView)          {}
func (NopSurface) Detach(models.Kind, string) {}

// RecordingSurface keeps the attached markers in memory and counts calls.
// It backs tests and the diagnostics endpoint.
type RecordingSurface struct {
	mu       sync.RWMutex
	attached map[string]MarkerView
	attaches int
	updates  int
	detaches int
}

// NewRecordingSurface creates an empty recording surface.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{attached: make(map[string]MarkerView)}
}

func surfaceKey(kind models.Kind, id string) string {
	return string(kind) + "/" + id
}

// Attach implements Surface.
func (r *RecordingSurface) Attach(view MarkerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached[surfaceKey(view.Kind, view.ID)] = view
	r.attaches++
}

// Update implements Surface.
func (r *RecordingSurface) Update(view MarkerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached[surfaceKey(view.Kind, view.ID)] = view
	r.updates++
}

// Detach implements Surface.
func (r *RecordingSurface) Detach(kind models.Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attached, surfaceKey(kind, id))
	r.detaches++
}

// Attached returns the attached markers sorted by kind and id.
func (r *RecordingSurface) Attached() []MarkerView {
	r.mu.RLock()
	out := make([]MarkerView, 0, len(r.attached))
	for _, v := range r.attached {
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IsAttached reports whether a marker is currently attached.
func (r *RecordingSurface) IsAttached(kind models.Kind, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.attached[surfaceKey(kind, id)]
	return ok
}

// Counts returns the number of attach, update and detach calls seen.
func (r *RecordingSurface) Counts() (attaches, updates, detaches int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attaches, r.updates, r.detaches
}
