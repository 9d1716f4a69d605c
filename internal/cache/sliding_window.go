// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package cache

import (
	"sync"
	"time"
)

// WindowCounter counts events over a sliding window split into buckets.
// Increment is O(1); Count is O(buckets).
type WindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	current    int
	lastUpdate time.Time
	now        func() time.Time
}

// NewWindowCounter creates a counter over window divided into numBuckets
// buckets. Defaults are one minute and twelve buckets.
func NewWindowCounter(window time.Duration, numBuckets int) *WindowCounter {
	if numBuckets <= 0 {
		numBuckets = 12
	}
	if window <= 0 {
		window = time.Minute
	}
	bucketSize := window / time.Duration(numBuckets)
	if bucketSize <= 0 {
		bucketSize = 1
	}
	return &WindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: bucketSize,
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// Increment adds delta to the current bucket.
func (w *WindowCounter) Increment(delta int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.buckets[w.current] += delta
}

// Count returns the number of events inside the window.
func (w *WindowCounter) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	var total int64
	for _, n := range w.buckets {
		total += n
	}
	return total
}

// Reset clears every bucket.
func (w *WindowCounter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.buckets)
	w.current = 0
	w.lastUpdate = w.now()
}

// advance rotates out buckets that fell behind the window. Must be called
// with mu held.
func (w *WindowCounter) advance() {
	now := w.now()
	elapsed := int(now.Sub(w.lastUpdate) / w.bucketSize)
	if elapsed <= 0 {
		return
	}
	if elapsed >= len(w.buckets) {
		clear(w.buckets)
		w.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			w.current = (w.current + 1) % len(w.buckets)
			w.buckets[w.current] = 0
		}
	}
	// Keep the sub-bucket remainder so buckets stay aligned.
	w.lastUpdate = w.lastUpdate.Add(time.Duration(elapsed) * w.bucketSize)
}
