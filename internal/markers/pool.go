// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package markers implements the marker pool: one visual proxy per live
// entity id, reused across updates and rendered into an external Surface.
//
// Proxies combine a shared flyweight descriptor (intrinsic state) with the
// per-entity position and record (extrinsic state). The pool never
// recreates a proxy for an id it already holds; updates mutate the proxy in
// place and re-render only when something visible changed.
package markers

import (
	"reflect"
	"sort"
	"sync"

	"github.com/tomtom215/velomap/internal/flyweight"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
)

// Config wires a pool to its registry, accessors and surface.
type Config[T any, K flyweight.Key] struct {
	Kind     models.Kind
	Registry *flyweight.Registry[K]
	Classify func(T) K
	IDOf     func(T) string
	Locate   func(T) (models.LatLng, bool)
	Surface  Surface
}

// Proxy is the pooled visual stand-in for one entity.
type Proxy[T any] struct {
	mu         sync.RWMutex
	kind       models.Kind
	id         string
	entity     T
	position   models.LatLng
	descriptor *flyweight.Descriptor
	surface    Surface

	attached bool
	last     *rendered[T]
	renders  int
}

type rendered[T any] struct {
	entity     T
	position   models.LatLng
	descriptor *flyweight.Descriptor
}

// ID returns the entity id.
func (p *Proxy[T]) ID() string { return p.id }

// Entity returns the extrinsic record last applied.
func (p *Proxy[T]) Entity() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entity
}

// Position returns the marker position.
func (p *Proxy[T]) Position() models.LatLng {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// Descriptor returns the shared descriptor currently associated.
func (p *Proxy[T]) Descriptor() *flyweight.Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.descriptor
}

// Attached reports whether the proxy is on the surface.
func (p *Proxy[T]) Attached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attached
}

// Renders returns how many surface calls the proxy has issued.
func (p *Proxy[T]) Renders() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.renders
}

// View returns the surface representation.
func (p *Proxy[T]) View() MarkerView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewLocked()
}

func (p *Proxy[T]) viewLocked() MarkerView {
	return MarkerView{
		Kind:       p.kind,
		ID:         p.id,
		Position:   p.position,
		Descriptor: p.descriptor.View(),
		State:      p.entity,
	}
}

// Render pushes the proxy to the surface. It attaches on first call and
// afterwards updates only when position, descriptor or record changed, so
// repeated renders of unchanged state are no-ops.
func (p *Proxy[T]) Render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attached && p.last != nil &&
		p.last.position == p.position &&
		p.last.descriptor == p.descriptor &&
		reflect.DeepEqual(p.last.entity, p.entity) {
		return
	}

	view := p.viewLocked()
	if !p.attached {
		p.surface.Attach(view)
		p.attached = true
	} else {
		p.surface.Update(view)
	}
	p.renders++
	p.last = &rendered[T]{entity: p.entity, position: p.position, descriptor: p.descriptor}
}

func (p *Proxy[T]) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		p.surface.Detach(p.kind, p.id)
		p.attached = false
	}
	p.last = nil
}

// Pool keeps exactly one proxy per entity id.
type Pool[T any, K flyweight.Key] struct {
	cfg     Config[T, K]
	mu      sync.Mutex
	proxies map[string]*Proxy[T]
}

// NewPool creates an empty pool. A nil surface discards renders.
func NewPool[T any, K flyweight.Key](cfg Config[T, K]) *Pool[T, K] {
	if cfg.Surface == nil {
		cfg.Surface = NopSurface{}
	}
	return &Pool[T, K]{
		cfg:     cfg,
		proxies: make(map[string]*Proxy[T]),
	}
}

// GetOrCreate updates the proxy for entity in place, or creates and
// registers one. The descriptor is looked up again on every call.
//
// An entity without a position updates an existing proxy at its last known
// position; for an unknown id it creates nothing and returns false.
func (p *Pool[T, K]) GetOrCreate(entity T) (*Proxy[T], bool) {
	id := p.cfg.IDOf(entity)
	pos, hasPos := p.cfg.Locate(entity)
	desc := p.cfg.Registry.Get(p.cfg.Classify(entity))

	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, exists := p.proxies[id]
	if !exists {
		if !hasPos {
			return nil, false
		}
		proxy = &Proxy[T]{kind: p.cfg.Kind, id: id, surface: p.cfg.Surface}
		p.proxies[id] = proxy
		metrics.MarkerProxies.WithLabelValues(string(p.cfg.Kind)).Set(float64(len(p.proxies)))
	}

	proxy.mu.Lock()
	proxy.entity = entity
	proxy.descriptor = desc
	if hasPos {
		proxy.position = pos
	}
	proxy.mu.Unlock()

	proxy.Render()
	return proxy, true
}

// Get returns the proxy for id.
func (p *Pool[T, K]) Get(id string) (*Proxy[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proxy, ok := p.proxies[id]
	return proxy, ok
}

// Remove detaches and discards the proxy for id. It is a no-op for
// unknown ids and reports whether a proxy was removed.
func (p *Pool[T, K]) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return false
	}
	proxy.detach()
	delete(p.proxies, id)
	metrics.MarkerProxies.WithLabelValues(string(p.cfg.Kind)).Set(float64(len(p.proxies)))
	return true
}

// All returns a snapshot of the registered proxies ordered by id.
func (p *Pool[T, K]) All() []*Proxy[T] {
	p.mu.Lock()
	out := make([]*Proxy[T], 0, len(p.proxies))
	for _, proxy := range p.proxies {
		out = append(out, proxy)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Views returns surface representations of every proxy ordered by id.
func (p *Pool[T, K]) Views() []MarkerView {
	proxies := p.All()
	out := make([]MarkerView, len(proxies))
	for i, proxy := range proxies {
		out[i] = proxy.View()
	}
	return out
}

// Clear detaches and discards every proxy.
func (p *Pool[T, K]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, proxy := range p.proxies {
		proxy.detach()
		delete(p.proxies, id)
	}
	metrics.MarkerProxies.WithLabelValues(string(p.cfg.Kind)).Set(0)
}

// Size returns the number of proxies.
func (p *Pool[T, K]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Descriptors returns the number of distinct descriptors materialized by
// the pool's registry.
func (p *Pool[T, K]) Descriptors() int {
	return p.cfg.Registry.Count()
}

// Kind returns the entity kind the pool renders.
func (p *Pool[T, K]) Kind() models.Kind {
	return p.cfg.Kind
}
