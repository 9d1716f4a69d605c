// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package cache provides the small in-memory data structures shared by the
reference store, the transport adapter and the HTTP API.

# TTL Cache

Cache[V] is a map with per-entry expiry. It has no background goroutine:
expired entries are removed lazily on Get and in bulk by Cleanup. The
reference store swaps its whole content with ReplaceAll after every
successful fetch.

	refs := cache.New[models.Station](15 * time.Minute)
	refs.ReplaceAll(loaded)
	if s, ok := refs.Get("42"); ok {
	    // fallback record for a partial update
	}

# Spatial Index

SpatialIndex[V] buckets positions into a uniform grid (default 1 km
cells) for "what is near me" queries:

	idx := cache.NewSpatialIndex[markers.MarkerView](0.5)
	idx.Upsert("bicycles/b1", pos, view)
	hits := idx.Nearby(models.LatLng{Lat: 40.41, Lng: -3.70}, 0.8, 20)

Results are ordered by great-circle distance, nearest first.

# Window Counter

WindowCounter counts events over a sliding window of fixed buckets. The
transport adapter uses one per channel to report frames per minute.

	frames := cache.NewWindowCounter(time.Minute, 12)
	frames.Increment(1)
	perMinute := frames.Count()

# Thread Safety

Every type is safe for concurrent use.
*/
package cache
