// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package normalize

import (
	"strings"

	"github.com/tomtom215/velomap/internal/models"
)

var (
	BicycleIDKeys = []string{"bikeId", "id", "idBicycle", "bike_id", "bicycle_id", "bicycleId"}
	categoryKeys  = []string{"type", "category", "bikeType", "bike_type"}
	electricFlags = []string{"isElectric", "electric"}
	lockKeys      = []string{"padlockStatus", "lockStatus", "lock_status", "padlock", "status"}
	lockedFlags   = []string{"locked", "isLocked"}
	batteryKeys   = []string{"battery", "batteryLevel", "battery_level", "charge"}
)

// BicycleID resolves a bicycle id from any of the known id keys.
func BicycleID(p Payload) (string, bool) {
	return String(p, BicycleIDKeys...)
}

// DecodeBicycle builds a canonical bicycle from p with the same
// key/previous/default precedence as DecodeStation. Defaults are
// MECHANICAL and LOCKED.
func DecodeBicycle(p Payload, prev *models.Bicycle) (models.Bicycle, error) {
	id, ok := BicycleID(p)
	if !ok {
		return models.Bicycle{}, ErrUnidentifiable
	}

	out := models.Bicycle{ID: id, Category: models.CategoryMechanical, Lock: models.LockLocked}
	if prev != nil {
		out = prev.Clone()
		out.ID = id
	}

	if c, ok := decodeCategory(p); ok {
		out.Category = c
	}
	if l, ok := decodeLock(p); ok {
		out.Lock = l
	}
	if v, ok := Int(p, batteryKeys...); ok {
		v = min(max(v, 0), 100)
		out.Battery = &v
	}
	if out.Category != models.CategoryElectric {
		out.Battery = nil
	}

	out.Position = decodePosition(p, out.Position)

	if v, ok := Time(p, timestampKeys...); ok {
		out.LastUpdate = v
	}
	return out, nil
}

func decodeCategory(p Payload) (models.BicycleCategory, bool) {
	for _, k := range categoryKeys {
		s, ok := String(p, k)
		if !ok {
			continue
		}
		if c, ok := ParseCategory(s); ok {
			return c, true
		}
	}
	if b, ok := Bool(p, electricFlags...); ok {
		if b {
			return models.CategoryElectric, true
		}
		return models.CategoryMechanical, true
	}
	return "", false
}

func decodeLock(p Payload) (models.LockStatus, bool) {
	for _, k := range lockKeys {
		v, ok := p.lookup(k)
		if !ok {
			continue
		}
		if b, isBool := v.(bool); isBool {
			if b {
				return models.LockLocked, true
			}
			return models.LockUnlocked, true
		}
		if s, ok := toString(v); ok {
			if l, ok := ParseLockStatus(s); ok {
				return l, true
			}
		}
	}
	if b, ok := Bool(p, lockedFlags...); ok {
		if b {
			return models.LockLocked, true
		}
		return models.LockUnlocked, true
	}
	return "", false
}

// ParseCategory accepts the category spellings seen on the wire.
func ParseCategory(raw string) (models.BicycleCategory, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ELECTRIC", "E", "EBIKE", "E-BIKE", "ELECTRICAL", "ELECTRICA", "ELÉCTRICA":
		return models.CategoryElectric, true
	case "MECHANICAL", "M", "NORMAL", "MECANICA", "MECÁNICA", "REGULAR":
		return models.CategoryMechanical, true
	}
	return "", false
}

// ParseLockStatus accepts the padlock spellings seen on the wire.
func ParseLockStatus(raw string) (models.LockStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOCKED", "CLOSED", "LOCK", "TRUE", "1":
		return models.LockLocked, true
	case "UNLOCKED", "OPEN", "UNLOCK", "FALSE", "0":
		return models.LockUnlocked, true
	case "ERROR", "FAULT", "FAILURE", "UNKNOWN":
		return models.LockError, true
	}
	return "", false
}
