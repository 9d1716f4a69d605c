// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// number is satisfied by json.Number without naming the concrete type.
type number interface {
	Float64() (float64, error)
	String() string
}

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Float tries keys in order and returns the first value that coerces to a
// finite number.
func Float(p Payload, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// Int is Float rounded to the nearest integer.
func Int(p Payload, keys ...string) (int, bool) {
	f, ok := Float(p, keys...)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Bool tries keys in order. Native booleans, "true"/"false" in any case,
// and numbers (non-zero is true) are accepted.
func Bool(p Payload, keys ...string) (bool, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if b, ok := toBool(v); ok {
				return b, true
			}
		}
	}
	return false, false
}

// String tries keys in order. Numbers are rendered in their literal form so
// numeric ids round-trip unchanged. Blank strings are skipped.
func String(p Payload, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if s, ok := toString(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Time tries keys in order. Numbers are epoch milliseconds; strings are
// either numeric epoch milliseconds or ISO-8601 dates. Results are UTC.
func Time(p Payload, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if t, ok := toTime(v); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		if f, ok := toFloat(t); ok {
			return f != 0, true
		}
		return false, false
	default:
		if f, ok := toFloat(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case number:
		return t.String(), true
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func toTime(v interface{}) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC(), true
				}
			}
			return time.Time{}, false
		}
	}
	ms, ok := toFloat(v)
	if !ok || ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
