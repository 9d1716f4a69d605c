// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

var (
	// ErrMalformed is returned when a frame body is not structured JSON.
	ErrMalformed = errors.New("malformed payload")

	// ErrUnidentifiable is returned when no known id key resolves.
	ErrUnidentifiable = errors.New("unidentifiable payload")
)

// Payload is one decoded wire object. Numbers are kept as json.Number so
// integer ids and epoch milliseconds survive without float rounding.
type Payload map[string]interface{}

// batchKeys are wrapper keys some backends use around bulk arrays.
var batchKeys = []string{"data", "items", "content", "stations", "bicycles", "bikes"}

// ParsePayload decodes a single JSON object.
func ParsePayload(body []byte) (Payload, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrMalformed, v)
	}
	return Payload(obj), nil
}

// ParseBatch decodes a bulk body. It accepts a bare array, a single object,
// or an object wrapping the array under one of the usual envelope keys.
// Non-object array elements are skipped.
func ParseBatch(body []byte) ([]Payload, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}

	switch t := v.(type) {
	case []interface{}:
		return objects(t), nil
	case map[string]interface{}:
		p := Payload(t)
		for _, key := range batchKeys {
			if inner, ok := p.lookup(key); ok {
				if arr, ok := inner.([]interface{}); ok {
					return objects(arr), nil
				}
			}
		}
		return []Payload{p}, nil
	default:
		return nil, fmt.Errorf("%w: expected array or object, got %T", ErrMalformed, v)
	}
}

func decode(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// Trailing garbage after the first value means a corrupt frame.
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return v, nil
}

func objects(arr []interface{}) []Payload {
	out := make([]Payload, 0, len(arr))
	for _, el := range arr {
		if obj, ok := el.(map[string]interface{}); ok {
			out = append(out, Payload(obj))
		}
	}
	return out
}

// lookup finds key exactly, then case-insensitively. Explicit JSON nulls
// count as absent. When several keys differ from key only in case, the
// lexically smallest non-null one wins, whatever the map order.
func (p Payload) lookup(key string) (interface{}, bool) {
	if v, ok := p[key]; ok {
		return v, v != nil
	}
	var (
		best  string
		value interface{}
	)
	for k, v := range p {
		if v == nil || !strings.EqualFold(k, key) {
			continue
		}
		if value == nil || k < best {
			best, value = k, v
		}
	}
	return value, value != nil
}

// Has reports whether any of keys is present with a non-null value.
func (p Payload) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := p.lookup(k); ok {
			return true
		}
	}
	return false
}

// Present reports whether any of keys exists, including explicit nulls.
// Backends send null to clear a value, which differs from omitting it.
func (p Payload) Present(keys ...string) bool {
	for _, key := range keys {
		if _, ok := p[key]; ok {
			return true
		}
		for k := range p {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	return false
}

// Object returns the first nested object found under keys.
func (p Payload) Object(keys ...string) (Payload, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if obj, ok := v.(map[string]interface{}); ok {
				return Payload(obj), true
			}
		}
	}
	return nil, false
}

// Array returns the first array of objects found under keys.
func (p Payload) Array(keys ...string) ([]Payload, bool) {
	for _, k := range keys {
		if v, ok := p.lookup(k); ok {
			if arr, ok := v.([]interface{}); ok {
				return objects(arr), true
			}
		}
	}
	return nil, false
}
