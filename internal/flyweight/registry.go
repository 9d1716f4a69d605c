// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package flyweight deduplicates the immutable visual descriptors shared by
// map markers.
//
// A descriptor is the intrinsic state of a marker (icon, color, label,
// stacking order). It depends only on a small classification key derived
// from the entity, so thousands of bicycles share a handful of descriptors.
// Per-entity extrinsic state (position, battery, occupancy) lives on the
// marker proxy, never on the descriptor.
//
// Registries are plain values constructed by the caller and passed to the
// marker pool; there is no package-level shared registry.
package flyweight

import (
	"fmt"
	"sort"
	"sync"
)

// Key is a classification key. Keys must be comparable and render a stable
// string form used as the descriptor id.
type Key interface {
	comparable
	fmt.Stringer
}

// Descriptor is shared intrinsic marker state. Fields are unexported so a
// descriptor cannot change after construction.
type Descriptor struct {
	key    string
	icon   string
	color  string
	label  string
	zIndex int
}

// Spec carries the values used to construct a Descriptor.
type Spec struct {
	Icon   string
	Color  string
	Label  string
	ZIndex int
}

// Key returns the classification key the descriptor was built for.
func (d *Descriptor) Key() string { return d.key }

// Icon returns the icon identifier.
func (d *Descriptor) Icon() string { return d.icon }

// Color returns the marker color as a CSS hex string.
func (d *Descriptor) Color() string { return d.color }

// Label returns the human readable classification label.
func (d *Descriptor) Label() string { return d.label }

// ZIndex returns the stacking order hint.
func (d *Descriptor) ZIndex() int { return d.zIndex }

// View is the serializable form of a descriptor.
type View struct {
	Key    string `json:"key"`
	Icon   string `json:"icon"`
	Color  string `json:"color"`
	Label  string `json:"label"`
	ZIndex int    `json:"z_index"`
}

// View returns a serializable copy.
func (d *Descriptor) View() View {
	return View{Key: d.key, Icon: d.icon, Color: d.color, Label: d.label, ZIndex: d.zIndex}
}

// Registry lazily materializes one Descriptor per key.
type Registry[K Key] struct {
	mu    sync.Mutex
	build func(K) Spec
	items map[K]*Descriptor
}

// NewRegistry creates a registry that builds descriptors with build.
func NewRegistry[K Key](build func(K) Spec) *Registry[K] {
	return &Registry[K]{
		build: build,
		items: make(map[K]*Descriptor),
	}
}

// Get returns the shared descriptor for key, constructing it on first use.
// Repeated calls with equal keys return the same pointer.
func (r *Registry[K]) Get(key K) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.items[key]; ok {
		return d
	}
	spec := r.build(key)
	d := &Descriptor{
		key:    key.String(),
		icon:   spec.Icon,
		color:  spec.Color,
		label:  spec.Label,
		zIndex: spec.ZIndex,
	}
	r.items[key] = d
	return d
}

// Preload materializes descriptors for keys up front.
func (r *Registry[K]) Preload(keys ...K) {
	for _, k := range keys {
		r.Get(k)
	}
}

// Count returns the number of distinct descriptors materialized.
func (r *Registry[K]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Views returns every materialized descriptor sorted by key.
func (r *Registry[K]) Views() []View {
	r.mu.Lock()
	out := make([]View, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d.View())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Keys returns the classification keys materialized so far, in the order
// of their string form.
func (r *Registry[K]) Keys() []K {
	r.mu.Lock()
	out := make([]K, 0, len(r.items))
	for k := range r.items {
		out = append(out, k)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
