// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package markers

import (
	"testing"

	"github.com/tomtom215/velomap/internal/models"
)

func TestTee_ForwardsToEverySurface(t *testing.T) {
	t.Parallel()

	a, b := NewRecordingSurface(), NewRecordingSurface()
	tee := NewTee(a, nil, b)
	if len(tee) != 2 {
		t.Fatalf("len(tee) = %d, want 2 (nil dropped)", len(tee))
	}

	pool := newBicyclePool(tee)
	pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))
	pool.GetOrCreate(bike("b1", 40.41, -3.7, 80))
	pool.Remove("b1")

	for name, s := range map[string]*RecordingSurface{"a": a, "b": b} {
		attaches, updates, detaches := s.Counts()
		if attaches != 1 || updates != 1 || detaches != 1 {
			t.Errorf("%s: counts = %d/%d/%d, want 1/1/1", name, attaches, updates, detaches)
		}
	}
}

func TestSpatialSurface_TracksPool(t *testing.T) {
	t.Parallel()

	spatial := NewSpatialSurface(0.5)
	pool := newBicyclePool(spatial)
	sol := models.LatLng{Lat: 40.4168, Lng: -3.7038}

	pool.GetOrCreate(bike("near", 40.4170, -3.7040, 80))
	pool.GetOrCreate(bike("far", 41.3874, 2.1686, 80))
	pool.GetOrCreate(models.Bicycle{ID: "unplaced"})

	if spatial.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", spatial.Len())
	}

	hits := spatial.Nearby(models.KindBicycle, sol, 1, 0)
	if len(hits) != 1 || hits[0].Value.ID != "near" {
		t.Fatalf("Nearby = %+v, want only near", hits)
	}
	if got := spatial.Nearby(models.KindStation, sol, 1, 0); len(got) != 0 {
		t.Errorf("station filter returned %d bicycles", len(got))
	}
	if got := spatial.Nearby("", sol, 1000, 1); len(got) != 1 {
		t.Errorf("limit 1 returned %d", len(got))
	}

	// Moving the bike out of range updates the index.
	pool.GetOrCreate(bike("near", 40.5, -3.5, 80))
	if got := spatial.Nearby(models.KindBicycle, sol, 1, 0); len(got) != 0 {
		t.Errorf("moved bike still near: %+v", got)
	}

	pool.Clear()
	if spatial.Len() != 0 {
		t.Errorf("Len() after Clear = %d", spatial.Len())
	}
}
