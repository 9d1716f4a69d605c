// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package models

import "time"

// BicycleCategory distinguishes pedal and assisted bicycles.
type BicycleCategory string

const (
	CategoryElectric   BicycleCategory = "ELECTRIC"
	CategoryMechanical BicycleCategory = "MECHANICAL"
)

// LockStatus is the padlock state reported by a bicycle.
type LockStatus string

const (
	LockLocked   LockStatus = "LOCKED"
	LockUnlocked LockStatus = "UNLOCKED"
	LockError    LockStatus = "ERROR"
)

// LowBatteryThreshold is the percentage below which a battery counts as low.
const LowBatteryThreshold = 20

// Bicycle is the canonical bicycle record.
type Bicycle struct {
	ID         string          `json:"id"`
	Category   BicycleCategory `json:"category"`
	Lock       LockStatus      `json:"lock_status"`
	Battery    *int            `json:"battery,omitempty"`
	Position   *LatLng         `json:"position,omitempty"`
	LastUpdate time.Time       `json:"last_update"`
}

// EntityID implements the live cache entity contract.
func (b Bicycle) EntityID() string { return b.ID }

// Location returns the bicycle position if known.
func (b Bicycle) Location() (LatLng, bool) {
	if b.Position == nil {
		return LatLng{}, false
	}
	return *b.Position, true
}

// Clone returns a deep copy.
func (b Bicycle) Clone() Bicycle {
	out := b
	if b.Position != nil {
		p := *b.Position
		out.Position = &p
	}
	out.Battery = cloneInt(b.Battery)
	return out
}

// LowBattery reports whether an electric bicycle is under the low threshold.
// Mechanical bicycles and bicycles without a reading are never low.
func (b Bicycle) LowBattery() bool {
	return b.Category == CategoryElectric && b.Battery != nil && *b.Battery < LowBatteryThreshold
}
