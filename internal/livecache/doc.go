// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package livecache holds the last known canonical record of every live entity
of one kind and reconciles incoming frames against it.

# Seeding

Bulk snapshots are authoritative. Seed replaces the cached record for every
id it receives; nothing from the previous record survives. Replace does the
same and additionally evicts ids the snapshot no longer mentions.

# Merging

Incremental frames usually carry a handful of telemetry fields. Merge
decodes them with the cached record as the fallback for every omitted field,
then the reference store record when the cache has never seen the id, then
the normalizer defaults:

	cached:   {"id":"b1","lat":10,"lon":20,"battery":50}
	incoming: {"id":"b1","battery":40}
	merged:   {"id":"b1","lat":10,"lon":20,"battery":40}

A merged record without coordinates for an id that never had any is kept in
the cache but not rendered. The first later frame carrying coordinates
creates its marker.

# Failures

Frames whose body is not JSON, or whose id cannot be resolved, are dropped,
logged and counted on velomap_frames_dropped_total. They never change state.

# Observers

Subscribe registers a callback invoked once per successful seed or merge,
after the cache mutation and outside the cache lock.
*/
package livecache
