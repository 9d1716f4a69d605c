// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package livemap composes the per-kind pipeline: a transport adapter
// delivers frames to a livecache.Feed, the reconciler merges them into the
// live cache and drives a marker pool backed by a flyweight registry.
//
// One Channel exists per entity kind; station and bicycle channels share
// nothing and run independently.
//
//	stations, err := livemap.NewStations(livemap.Options{Transport: cfg}, hub, refs)
//	stations.Subscribe(func(id string, s models.Station) { ... })
//	stations.Connect(ctx)
//	defer stations.Close()
package livemap
