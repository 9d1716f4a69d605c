// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package normalize turns heterogeneous station and bicycle payloads into
// canonical records.
//
// The upstream backends disagree on field names (latitude/lat,
// longitude/length, padlockStatus/lockStatus), casing, and value types
// (booleans as "true", 1 or true; numbers as strings). Every canonical field
// is decoded by probing an ordered key list and taking the first present,
// well-typed value.
//
// # Precedence
//
// For each field:
//  1. First matching key in the payload
//  2. The previous record passed by the caller (cache or reference store)
//  3. A documented default (0, false, LOCKED, MECHANICAL)
//
// # Failures
//
// Decoding never fails for missing optional fields. It fails with
// ErrUnidentifiable when no id key resolves, and ParsePayload/ParseBatch
// fail with ErrMalformed on bodies that are not JSON.
package normalize
