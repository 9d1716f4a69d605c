// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package models defines the canonical entity records shared by every layer
of the live map pipeline.

# Entities

  - Station: docking station with capacity, bike-type breakdown, optional
    security sensors and per-slot detail
  - Bicycle: free-floating or docked bicycle with category, lock state and
    battery
  - LatLng: WGS84 position; Valid rejects NaN, out-of-range and the 0,0
    placeholder

# Optional Fields

Records use pointer fields for values that may legitimately be absent
(battery, bike-type breakdown, security sensors, position). Absence is
meaningful: the reconciler falls back to cached values only when a field
is missing, so zero values and "never reported" must stay distinct. Clone
deep-copies every pointer so cached records never alias caller memory.

# Kinds

Kind names an entity family and doubles as the URL segment of the HTTP
API. ParseKind accepts singular, plural and "bike" aliases.
*/
package models
