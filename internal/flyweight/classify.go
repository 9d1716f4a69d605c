// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package flyweight

import (
	"github.com/tomtom215/velomap/internal/models"
)

// StationClass is the closed set of station classifications.
type StationClass string

const (
	StationAvailable StationClass = "available"
	StationLow       StationClass = "low"
	StationEmpty     StationClass = "empty"
	StationFull      StationClass = "full"
	StationOffline   StationClass = "offline"
	StationAlert     StationClass = "alert"
)

// String implements Key.
func (c StationClass) String() string { return "station:" + string(c) }

// AllStationClasses lists every station classification for preloading.
var AllStationClasses = []StationClass{
	StationAvailable, StationLow, StationEmpty, StationFull, StationOffline, StationAlert,
}

// lowStockRatio is the share of capacity under which a station counts as low.
const lowStockRatio = 0.25

// ClassifyStation derives the station classification. An active panic
// button overrides stock levels.
func ClassifyStation(s models.Station) StationClass {
	if s.Security.PanicButton != nil && *s.Security.PanicButton {
		return StationAlert
	}
	if s.TotalSlots <= 0 {
		return StationOffline
	}

	bikes := s.TotalSlots - s.AvailableSlots
	if s.Mechanical != nil || s.Electric != nil {
		bikes = 0
		if s.Mechanical != nil {
			bikes += *s.Mechanical
		}
		if s.Electric != nil {
			bikes += *s.Electric
		}
	}

	switch {
	case bikes <= 0:
		return StationEmpty
	case s.AvailableSlots <= 0:
		return StationFull
	case float64(bikes) < float64(s.TotalSlots)*lowStockRatio:
		return StationLow
	default:
		return StationAvailable
	}
}

// BatteryBand is the coarse battery classification.
type BatteryBand string

const (
	BandNormal BatteryBand = "normal"
	BandLow    BatteryBand = "low"
)

// BicycleClass is the (type, lock state, battery band) tuple.
type BicycleClass struct {
	Category models.BicycleCategory
	Lock     models.LockStatus
	Band     BatteryBand
}

// String implements Key.
func (c BicycleClass) String() string {
	return "bicycle:" + string(c.Category) + ":" + string(c.Lock) + ":" + string(c.Band)
}

// ClassifyBicycle derives the bicycle classification. It is recomputed on
// every update so a battery crossing the low threshold moves the bicycle to
// a different descriptor.
func ClassifyBicycle(b models.Bicycle) BicycleClass {
	band := BandNormal
	if b.LowBattery() {
		band = BandLow
	}
	return BicycleClass{Category: b.Category, Lock: b.Lock, Band: band}
}

// AllBicycleClasses lists every reachable bicycle classification.
func AllBicycleClasses() []BicycleClass {
	var out []BicycleClass
	for _, cat := range []models.BicycleCategory{models.CategoryElectric, models.CategoryMechanical} {
		for _, lock := range []models.LockStatus{models.LockLocked, models.LockUnlocked, models.LockError} {
			out = append(out, BicycleClass{Category: cat, Lock: lock, Band: BandNormal})
			if cat == models.CategoryElectric {
				out = append(out, BicycleClass{Category: cat, Lock: lock, Band: BandLow})
			}
		}
	}
	return out
}

var stationSpecs = map[StationClass]Spec{
	StationAvailable: {Icon: "station-available", Color: "#2e7d32", Label: "Bikes available", ZIndex: 10},
	StationLow:       {Icon: "station-low", Color: "#f9a825", Label: "Few bikes left", ZIndex: 20},
	StationEmpty:     {Icon: "station-empty", Color: "#c62828", Label: "No bikes", ZIndex: 30},
	StationFull:      {Icon: "station-full", Color: "#1565c0", Label: "No free docks", ZIndex: 30},
	StationOffline:   {Icon: "station-offline", Color: "#757575", Label: "Out of service", ZIndex: 5},
	StationAlert:     {Icon: "station-alert", Color: "#d50000", Label: "Security alert", ZIndex: 100},
}

// StationSpec builds the intrinsic state for a station classification.
func StationSpec(c StationClass) Spec {
	if spec, ok := stationSpecs[c]; ok {
		return spec
	}
	return stationSpecs[StationOffline]
}

// BicycleSpec builds the intrinsic state for a bicycle classification.
func BicycleSpec(c BicycleClass) Spec {
	spec := Spec{Icon: "bike-mechanical", Color: "#455a64", Label: "Mechanical bike", ZIndex: 40}
	if c.Category == models.CategoryElectric {
		spec = Spec{Icon: "bike-electric", Color: "#00838f", Label: "Electric bike", ZIndex: 40}
		if c.Band == BandLow {
			spec.Icon += "-low"
			spec.Color = "#ef6c00"
			spec.Label += ", low battery"
		}
	}

	switch c.Lock {
	case models.LockUnlocked:
		spec.Icon += "-unlocked"
		spec.Label += ", in use"
		spec.ZIndex = 50
	case models.LockError:
		spec.Icon += "-error"
		spec.Color = "#b71c1c"
		spec.Label += ", lock error"
		spec.ZIndex = 60
	}
	return spec
}

// NewStationRegistry returns a registry for station descriptors.
func NewStationRegistry() *Registry[StationClass] {
	return NewRegistry(StationSpec)
}

// NewBicycleRegistry returns a registry for bicycle descriptors.
func NewBicycleRegistry() *Registry[BicycleClass] {
	return NewRegistry(BicycleSpec)
}
