// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClockedCache[V any](ttl time.Duration) (*Cache[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := New[V](ttl)
	c.now = clock.Now
	return c, clock
}

func TestCache_SetGet(t *testing.T) {
	t.Parallel()
	c, _ := newClockedCache[string](time.Minute)

	c.Set("a", "alpha")
	if v, ok := c.Get("a"); !ok || v != "alpha" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Keys != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := c.HitRate(); got != 50 {
		t.Errorf("HitRate() = %v, want 50", got)
	}
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()
	c, clock := newClockedCache[int](time.Minute)

	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)
	c.SetWithTTL("forever", 3, 0)

	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("short"); ok {
		t.Error("short should have expired")
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Errorf("Get(long) = %v, %v", v, ok)
	}

	clock.Advance(24 * time.Hour)
	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1 (long)", removed)
	}
	if v, ok := c.Get("forever"); !ok || v != 3 {
		t.Errorf("zero ttl entry expired: %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if ev := c.GetStats().Evictions; ev != 2 {
		t.Errorf("evictions = %d, want 2", ev)
	}
}

func TestCache_ReplaceAll(t *testing.T) {
	t.Parallel()
	c, _ := newClockedCache[string](time.Minute)

	c.Set("old", "x")
	c.Set("kept", "y")
	c.ReplaceAll(map[string]string{"kept": "y2", "new": "z"})

	if _, ok := c.Get("old"); ok {
		t.Error("old should be gone after ReplaceAll")
	}
	if v, _ := c.Get("kept"); v != "y2" {
		t.Errorf("kept = %q, want y2", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if ev := c.GetStats().Evictions; ev != 1 {
		t.Errorf("evictions = %d, want 1", ev)
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()
	c, _ := newClockedCache[int](0)

	for i := 0; i < 5; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	c.Delete("0")
	c.Delete("missing")
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	if ev := c.GetStats().Evictions; ev != 5 {
		t.Errorf("evictions = %d, want 5", ev)
	}
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa(i % 20)
				c.Set(key, w)
				c.Get(key)
				if i%50 == 0 {
					c.Cleanup()
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() != 20 {
		t.Errorf("Len() = %d, want 20", c.Len())
	}
}
