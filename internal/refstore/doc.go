// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package refstore loads reference records (the station directory, the
// fleet register) from an HTTP endpoint and answers GetByID for the
// reconciler when a partial update arrives for an id the live cache has
// not seen yet.
//
// Loads go through a sony/gobreaker circuit breaker; while it is open the
// previous dataset keeps serving until its TTL expires. GetByID never
// blocks on the network.
package refstore
