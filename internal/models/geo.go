// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package models

import (
	"fmt"
	"math"
	"strings"
)

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite, inside WGS84 bounds and
// not the null island placeholder several backends emit for "unknown".
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	return p.Lat != 0 || p.Lng != 0
}

// Kind identifies an entity family. Each kind owns its own cache, pool
// and transport.
type Kind string

const (
	KindStation Kind = "stations"
	KindBicycle Kind = "bicycles"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{KindStation, KindBicycle}

// ParseKind accepts the plural kind name or its singular form, in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stations", "station":
		return KindStation, nil
	case "bicycles", "bicycle", "bikes", "bike":
		return KindBicycle, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}
