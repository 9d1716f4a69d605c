// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package models

import "time"

// SlotStatus is the state of a single docking slot.
type SlotStatus string

const (
	SlotAvailable    SlotStatus = "available"
	SlotOccupied     SlotStatus = "occupied"
	SlotMaintenance  SlotStatus = "maintenance"
	SlotOutOfService SlotStatus = "out_of_service"
)

// Valid reports whether s is one of the known slot states.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotOccupied, SlotMaintenance, SlotOutOfService:
		return true
	}
	return false
}

// SecurityTelemetry carries the optional station security sensors.
// A nil field means the station never reported that sensor.
type SecurityTelemetry struct {
	CameraActive   *bool `json:"camera_active,omitempty"`
	PanicButton    *bool `json:"panic_button,omitempty"`
	LightingActive *bool `json:"lighting_active,omitempty"`
}

// IsZero reports whether no sensor has ever been reported.
func (s SecurityTelemetry) IsZero() bool {
	return s.CameraActive == nil && s.PanicButton == nil && s.LightingActive == nil
}

// Slot is one docking position inside a station.
type Slot struct {
	ID         string     `json:"id"`
	StationID  string     `json:"station_id"`
	Index      int        `json:"index"`
	Status     SlotStatus `json:"status"`
	BicycleID  string     `json:"bicycle_id,omitempty"`
	LastUpdate time.Time  `json:"last_update"`
}

// Station is the canonical docking station record.
//
// AvailableSlots may transiently exceed TotalSlots while partial updates
// arrive; nothing in the pipeline asserts the relation.
type Station struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Position       *LatLng           `json:"position,omitempty"`
	TotalSlots     int               `json:"total_slots"`
	AvailableSlots int               `json:"available_slots"`
	Mechanical     *int              `json:"mechanical_bikes,omitempty"`
	Electric       *int              `json:"electric_bikes,omitempty"`
	Security       SecurityTelemetry `json:"security"`
	LastUpdate     time.Time         `json:"last_update"`
	Slots          []Slot            `json:"slots,omitempty"`
}

// EntityID implements the live cache entity contract.
func (s Station) EntityID() string { return s.ID }

// Location returns the station position if known.
func (s Station) Location() (LatLng, bool) {
	if s.Position == nil {
		return LatLng{}, false
	}
	return *s.Position, true
}

// Clone returns a deep copy so cached records never share mutable state
// with callers.
func (s Station) Clone() Station {
	out := s
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	out.Mechanical = cloneInt(s.Mechanical)
	out.Electric = cloneInt(s.Electric)
	out.Security = SecurityTelemetry{
		CameraActive:   cloneBool(s.Security.CameraActive),
		PanicButton:    cloneBool(s.Security.PanicButton),
		LightingActive: cloneBool(s.Security.LightingActive),
	}
	if s.Slots != nil {
		out.Slots = make([]Slot, len(s.Slots))
		copy(out.Slots, s.Slots)
	}
	return out
}

// OccupancyRatio is AvailableSlots / TotalSlots clamped to [0,1].
// Stations without capacity report 0.
func (s Station) OccupancyRatio() float64 {
	if s.TotalSlots <= 0 {
		return 0
	}
	r := float64(s.AvailableSlots) / float64(s.TotalSlots)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
