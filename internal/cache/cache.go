// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory map with per-entry expiry.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]item[V]
	ttl     time.Duration
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// New creates a cache whose entries live for ttl. A non-positive ttl
// means entries never expire.
//
// There is no background goroutine: expired entries are dropped on access
// and by Cleanup, which owners call on their own schedule.
//
//	c := cache.New[models.Station](10 * time.Minute)
//	c.Set("s1", station)
//	if s, ok := c.Get("s1"); ok {
//	    // use s
//	}
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]item[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired. Expired
// entries are removed and counted as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if c.expired(it) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && c.expired(cur) {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return it.value, true
}

// Set stores value under key with the default ttl.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with a custom ttl.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = item[V]{value: value, expiresAt: c.deadline(ttl)}
}

// ReplaceAll swaps the whole content for values in one step, so readers
// never observe a half-loaded cache.
func (c *Cache[V]) ReplaceAll(values map[string]V) {
	deadline := c.deadline(c.ttl)
	next := make(map[string]item[V], len(values))
	for k, v := range values {
		next[k] = item[V]{value: v, expiresAt: deadline}
	}

	c.mu.Lock()
	dropped := 0
	for k := range c.entries {
		if _, ok := next[k]; !ok {
			dropped++
		}
	}
	c.entries = next
	c.mu.Unlock()
	c.evictions.Add(int64(dropped))
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok {
		c.evictions.Add(1)
	}
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]item[V])
	c.mu.Unlock()
	c.evictions.Add(int64(n))
}

// Len returns the number of stored entries, expired ones included until
// they are cleaned up.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, it := range c.entries {
		if c.expired(it) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evictions.Add(int64(removed))
	return removed
}

// GetStats returns the current counters.
func (c *Cache[V]) GetStats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Keys:      c.Len(),
	}
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache[V]) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

func (c *Cache[V]) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *Cache[V]) expired(it item[V]) bool {
	return !it.expiresAt.IsZero() && c.now().After(it.expiresAt)
}
