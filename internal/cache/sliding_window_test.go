// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package cache

import (
	"sync"
	"testing"
	"time"
)

// windowClock drives a WindowCounter deterministically.
type windowClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *windowClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *windowClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCounter(window time.Duration, buckets int) (*WindowCounter, *windowClock) {
	clock := &windowClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindowCounter(window, buckets)
	w.now = clock.Now
	w.lastUpdate = clock.Now()
	return w, clock
}

func TestWindowCounter_Slides(t *testing.T) {
	t.Parallel()

	w, clock := newTestCounter(time.Minute, 6) // 10s buckets

	w.Increment(3)
	clock.Advance(25 * time.Second)
	w.Increment(2)
	if got := w.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}

	// The first bucket leaves the window after a full minute.
	clock.Advance(40 * time.Second)
	if got := w.Count(); got != 2 {
		t.Fatalf("Count() after 65s = %d, want 2", got)
	}

	clock.Advance(2 * time.Minute)
	if got := w.Count(); got != 0 {
		t.Fatalf("Count() after idle = %d, want 0", got)
	}
}

func TestWindowCounter_RemainderKeepsAlignment(t *testing.T) {
	t.Parallel()

	w, clock := newTestCounter(time.Minute, 6)

	// Many short steps must rotate exactly like one long step.
	w.Increment(1)
	for i := 0; i < 12; i++ {
		clock.Advance(5 * time.Second)
		_ = w.Count()
	}
	if got := w.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0 after 60s", got)
	}
}

func TestWindowCounter_ResetAndDefaults(t *testing.T) {
	t.Parallel()

	w := NewWindowCounter(0, 0)
	if len(w.buckets) != 12 || w.bucketSize != 5*time.Second {
		t.Fatalf("defaults: buckets=%d size=%s", len(w.buckets), w.bucketSize)
	}
	w.Increment(7)
	w.Reset()
	if got := w.Count(); got != 0 {
		t.Errorf("Count() after Reset = %d", got)
	}
}

func TestWindowCounter_Concurrent(t *testing.T) {
	t.Parallel()

	w := NewWindowCounter(time.Hour, 4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				w.Increment(1)
			}
		}()
	}
	wg.Wait()
	if got := w.Count(); got != 8000 {
		t.Errorf("Count() = %d, want 8000", got)
	}
}
