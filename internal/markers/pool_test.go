// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package markers

import (
	"sync"
	"testing"

	"github.com/tomtom215/velomap/internal/flyweight"
	"github.com/tomtom215/velomap/internal/models"
)

func intPtr(v int) *int { return &v }

func newBicyclePool(surface Surface) *Pool[models.Bicycle, flyweight.BicycleClass] {
	return NewPool(Config[models.Bicycle, flyweight.BicycleClass]{
		Kind:     models.KindBicycle,
		Registry: flyweight.NewBicycleRegistry(),
		Classify: flyweight.ClassifyBicycle,
		IDOf:     models.Bicycle.EntityID,
		Locate:   models.Bicycle.Location,
		Surface:  surface,
	})
}

func bike(id string, lat, lng float64, battery int) models.Bicycle {
	return models.Bicycle{
		ID:       id,
		Category: models.CategoryElectric,
		Lock:     models.LockLocked,
		Battery:  intPtr(battery),
		Position: &models.LatLng{Lat: lat, Lng: lng},
	}
}

func TestPool_GetOrCreateReusesProxy(t *testing.T) {
	t.Parallel()

	surface := NewRecordingSurface()
	pool := newBicyclePool(surface)

	first, ok := pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))
	if !ok {
		t.Fatal("GetOrCreate returned false for a positioned entity")
	}
	second, _ := pool.GetOrCreate(bike("b1", 40.5, -3.6, 80))

	if first != second {
		t.Error("second call should reuse the existing proxy")
	}
	if pool.Size() != 1 {
		t.Errorf("Size() = %d, want 1", pool.Size())
	}
	if got := second.Position(); got.Lat != 40.5 || got.Lng != -3.6 {
		t.Errorf("Position() = %+v, want updated position", got)
	}

	attaches, updates, _ := surface.Counts()
	if attaches != 1 || updates != 1 {
		t.Errorf("attaches=%d updates=%d, want 1 and 1", attaches, updates)
	}
}

func TestProxy_RenderIsIdempotent(t *testing.T) {
	t.Parallel()

	surface := NewRecordingSurface()
	pool := newBicyclePool(surface)

	proxy, _ := pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))
	proxy.Render()
	proxy.Render()
	pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))

	if proxy.Renders() != 1 {
		t.Errorf("Renders() = %d, want 1", proxy.Renders())
	}
	attaches, updates, _ := surface.Counts()
	if attaches != 1 || updates != 0 {
		t.Errorf("attaches=%d updates=%d, want 1 and 0", attaches, updates)
	}
}

func TestPool_DescriptorFollowsClassification(t *testing.T) {
	t.Parallel()

	pool := newBicyclePool(nil)

	proxy, _ := pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))
	normal := proxy.Descriptor()

	pool.GetOrCreate(bike("b1", 40.4, -3.7, 10))
	low := proxy.Descriptor()
	if low == normal {
		t.Fatal("descriptor should change when battery drops below threshold")
	}

	pool.GetOrCreate(bike("b1", 40.4, -3.7, 90))
	if proxy.Descriptor() != normal {
		t.Error("recovering battery should return to the shared normal descriptor")
	}
	if pool.Descriptors() != 2 {
		t.Errorf("Descriptors() = %d, want 2", pool.Descriptors())
	}
}

func TestPool_UnpositionedEntity(t *testing.T) {
	t.Parallel()

	surface := NewRecordingSurface()
	pool := newBicyclePool(surface)

	unplaced := models.Bicycle{ID: "b9", Category: models.CategoryMechanical, Lock: models.LockLocked}
	if _, ok := pool.GetOrCreate(unplaced); ok {
		t.Fatal("unpositioned unknown entity must not create a proxy")
	}
	if pool.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", pool.Size())
	}

	pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))
	moved := bike("b1", 0, 0, 50)
	moved.Position = nil
	proxy, ok := pool.GetOrCreate(moved)
	if !ok {
		t.Fatal("existing proxy should accept a record without position")
	}
	if got := proxy.Position(); got.Lat != 40.4 {
		t.Errorf("Position() = %+v, want last known position", got)
	}
}

func TestPool_RemoveAndClear(t *testing.T) {
	t.Parallel()

	surface := NewRecordingSurface()
	pool := newBicyclePool(surface)

	for _, id := range []string{"c", "a", "b"} {
		pool.GetOrCreate(bike(id, 40.4, -3.7, 80))
	}

	all := pool.All()
	if len(all) != 3 || all[0].ID() != "a" || all[2].ID() != "c" {
		t.Fatalf("All() not sorted by id: %v", all)
	}

	if !pool.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if pool.Remove("missing") {
		t.Error("Remove(missing) = true, want false")
	}
	if surface.IsAttached(models.KindBicycle, "a") {
		t.Error("removed proxy still attached")
	}

	pool.Clear()
	if pool.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", pool.Size())
	}
	if n := len(surface.Attached()); n != 0 {
		t.Errorf("surface still holds %d markers after Clear", n)
	}
	for _, p := range all {
		if p.Attached() {
			t.Errorf("proxy %s still reports attached", p.ID())
		}
	}
}

func TestPool_ConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	pool := newBicyclePool(NewRecordingSurface())
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool.GetOrCreate(bike("shared", 40.4, -3.7, 50+i))
		}(i)
	}
	wg.Wait()

	if pool.Size() != 1 {
		t.Errorf("Size() = %d, want 1", pool.Size())
	}
}

func TestPool_Views(t *testing.T) {
	t.Parallel()

	pool := newBicyclePool(nil)
	pool.GetOrCreate(bike("b1", 40.4, -3.7, 80))

	views := pool.Views()
	if len(views) != 1 {
		t.Fatalf("len(Views) = %d, want 1", len(views))
	}
	v := views[0]
	if v.Kind != models.KindBicycle || v.ID != "b1" {
		t.Errorf("view = %+v", v)
	}
	if v.Descriptor.Icon != "bike-electric" {
		t.Errorf("descriptor icon = %q", v.Descriptor.Icon)
	}
	if _, ok := v.State.(models.Bicycle); !ok {
		t.Errorf("state type = %T, want models.Bicycle", v.State)
	}
}
