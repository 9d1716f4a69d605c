// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/velomap/internal/models"
)

// Key tables. Order is precedence: the first present, well-typed key wins.
var (
	StationIDKeys  = []string{"stationId", "idStation", "station_id", "id"}
	nameKeys       = []string{"name", "stationName", "station_name", "title"}
	latitudeKeys   = []string{"latitude", "lat"}
	longitudeKeys  = []string{"longitude", "lon", "lng", "length"}
	positionKeys   = []string{"position", "location", "coords", "coordinates"}
	totalKeys      = []string{"totalSlots", "total_slots", "capacity", "slotsTotal", "numberOfSlots"}
	availableKeys  = []string{"availableSlots", "available_slots", "freeSlots", "slotsAvailable", "available"}
	mechanicalKeys = []string{"mechanicalBikes", "mechanical", "availableMechanical", "mechanical_bikes"}
	electricKeys   = []string{"electricBikes", "electric", "availableElectric", "electric_bikes"}
	securityKeys   = []string{"security", "securityStatus", "sensors"}
	cameraKeys     = []string{"cameraActive", "camera", "securityCamera", "camera_active"}
	panicKeys      = []string{"panicButton", "panic", "emergencyButton", "panic_button"}
	lightingKeys   = []string{"lightingActive", "lighting", "lights", "lighting_active"}
	timestampKeys  = []string{"lastUpdate", "updatedAt", "timestamp", "last_update", "lastUpdated"}
	slotsKeys      = []string{"slots", "anchors", "docks"}

	slotIDKeys      = []string{"id", "slotId", "idSlot", "slot_id"}
	slotIndexKeys   = []string{"index", "slotIndex", "slotNumber", "number", "position"}
	slotStatusKeys  = []string{"status", "state", "slotStatus"}
	slotBicycleKeys = []string{"bikeId", "bicycleId", "idBicycle", "bike_id", "bicycle_id"}
)

// StationID resolves a station id from any of the known id keys.
func StationID(p Payload) (string, bool) {
	return String(p, StationIDKeys...)
}

// DecodeStation builds a canonical station from p. Every field missing from p
// falls back to prev (when non-nil) and then to the zero value.
func DecodeStation(p Payload, prev *models.Station) (models.Station, error) {
	id, ok := StationID(p)
	if !ok {
		return models.Station{}, ErrUnidentifiable
	}

	out := models.Station{ID: id}
	if prev != nil {
		out = prev.Clone()
		out.ID = id
	}

	if v, ok := String(p, nameKeys...); ok {
		out.Name = v
	}
	out.Position = decodePosition(p, out.Position)

	if v, ok := Int(p, totalKeys...); ok && v >= 0 {
		out.TotalSlots = v
	}
	if v, ok := Int(p, availableKeys...); ok && v >= 0 {
		out.AvailableSlots = v
	}
	if v, ok := Int(p, mechanicalKeys...); ok && v >= 0 {
		out.Mechanical = &v
	}
	if v, ok := Int(p, electricKeys...); ok && v >= 0 {
		out.Electric = &v
	}

	decodeSecurity(p, &out.Security)
	if nested, ok := p.Object(securityKeys...); ok {
		decodeSecurity(nested, &out.Security)
	}

	if v, ok := Time(p, timestampKeys...); ok {
		out.LastUpdate = v
	}

	if raw, ok := p.Array(slotsKeys...); ok {
		out.Slots = decodeSlots(raw, id, out.Slots, out.LastUpdate)
	}

	return out, nil
}

func decodeSecurity(p Payload, sec *models.SecurityTelemetry) {
	if v, ok := Bool(p, cameraKeys...); ok {
		sec.CameraActive = &v
	}
	if v, ok := Bool(p, panicKeys...); ok {
		sec.PanicButton = &v
	}
	if v, ok := Bool(p, lightingKeys...); ok {
		sec.LightingActive = &v
	}
}

// decodePosition reads top-level lat/lon, a nested position object, or a
// GeoJSON style [lng, lat] pair. A single missing component is taken from
// prev. Invalid coordinates leave prev untouched.
func decodePosition(p Payload, prev *models.LatLng) *models.LatLng {
	lat, latOK := Float(p, latitudeKeys...)
	lng, lngOK := Float(p, longitudeKeys...)

	if !latOK && !lngOK {
		if nested, ok := p.Object(positionKeys...); ok {
			lat, latOK = Float(nested, latitudeKeys...)
			lng, lngOK = Float(nested, longitudeKeys...)
		} else if pair, ok := coordinatePair(p); ok {
			lng, lat = pair[0], pair[1]
			latOK, lngOK = true, true
		}
	}

	if prev != nil {
		if !latOK {
			lat, latOK = prev.Lat, true
		}
		if !lngOK {
			lng, lngOK = prev.Lng, true
		}
	}
	if !latOK || !lngOK {
		return prev
	}

	pos := models.LatLng{Lat: lat, Lng: lng}
	if !pos.Valid() {
		return prev
	}
	return &pos
}

func coordinatePair(p Payload) ([2]float64, bool) {
	for _, k := range positionKeys {
		v, ok := p.lookup(k)
		if !ok {
			continue
		}
		arr, ok := v.([]interface{})
		if !ok || len(arr) < 2 {
			continue
		}
		lng, ok1 := toFloat(arr[0])
		lat, ok2 := toFloat(arr[1])
		if ok1 && ok2 {
			return [2]float64{lng, lat}, true
		}
	}
	return [2]float64{}, false
}

// decodeSlots replaces the slot list, merging each slot with its previous
// state matched by id, then by index.
func decodeSlots(raw []Payload, stationID string, prev []models.Slot, stamp time.Time) []models.Slot {
	byID := make(map[string]models.Slot, len(prev))
	byIndex := make(map[int]models.Slot, len(prev))
	for _, s := range prev {
		byID[s.ID] = s
		byIndex[s.Index] = s
	}

	out := make([]models.Slot, 0, len(raw))
	for _, sp := range raw {
		var base models.Slot
		id, hasID := String(sp, slotIDKeys...)
		index, hasIndex := Int(sp, slotIndexKeys...)

		switch {
		case hasID && byID[id].ID != "":
			base = byID[id]
		case hasIndex && byIndex[index].ID != "":
			base = byIndex[index]
		default:
			base = models.Slot{Status: models.SlotAvailable, LastUpdate: stamp}
		}

		if hasIndex && index > 0 {
			base.Index = index
		}
		if hasID {
			base.ID = id
		}
		if base.ID == "" {
			if base.Index <= 0 {
				continue
			}
			base.ID = stationID + "-" + strconv.Itoa(base.Index)
		}
		base.StationID = stationID

		bike, hasBike := String(sp, slotBicycleKeys...)
		if hasBike {
			base.BicycleID = bike
		} else if sp.Present(slotBicycleKeys...) {
			base.BicycleID = ""
		}

		if status, ok := String(sp, slotStatusKeys...); ok {
			if st, ok := ParseSlotStatus(status); ok {
				base.Status = st
			}
		} else if hasBike {
			base.Status = models.SlotOccupied
		}

		if v, ok := Time(sp, timestampKeys...); ok {
			base.LastUpdate = v
		}
		out = append(out, base)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ParseSlotStatus maps the backend vocabularies onto SlotStatus.
func ParseSlotStatus(raw string) (models.SlotStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "available", "free", "empty":
		return models.SlotAvailable, true
	case "occupied", "busy", "in_use":
		return models.SlotOccupied, true
	case "maintenance", "under_maintenance", "in_maintenance":
		return models.SlotMaintenance, true
	case "out_of_service", "disabled", "broken", "inactive":
		return models.SlotOutOfService, true
	}
	return "", false
}
