// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package livecache

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/normalize"
)

// Feed adapts a Reconciler to raw frame bodies delivered by a transport.
type Feed[T any] struct {
	r *Reconciler[T]

	// PruneOnBulk evicts cached ids missing from a bulk snapshot.
	PruneOnBulk bool
}

// NewFeed creates a feed for r.
func NewFeed[T any](r *Reconciler[T], pruneOnBulk bool) *Feed[T] {
	return &Feed[T]{r: r, PruneOnBulk: pruneOnBulk}
}

// Bulk seeds the reconciler from a snapshot body.
func (f *Feed[T]) Bulk(body []byte) error {
	payloads, err := normalize.ParseBatch(body)
	if err != nil {
		f.r.drop(err)
		return fmt.Errorf("bulk %s: %w", f.r.codec.Kind, err)
	}

	var n int
	if f.PruneOnBulk {
		n = f.r.ReplacePayloads(payloads)
	} else {
		n = f.r.SeedPayloads(payloads)
	}
	metrics.BulkSnapshots.WithLabelValues(string(f.r.codec.Kind)).Inc()
	f.r.logger.Info().Int("received", len(payloads)).Int("seeded", n).Msg("bulk snapshot applied")
	return nil
}

// Update merges every partial record in body. A frame may carry one object
// or a batch; unidentifiable entries are dropped without affecting the rest.
func (f *Feed[T]) Update(body []byte) error {
	payloads, err := normalize.ParseBatch(body)
	if err != nil {
		f.r.drop(err)
		return fmt.Errorf("update %s: %w", f.r.codec.Kind, err)
	}

	var errs []error
	for _, p := range payloads {
		if _, err := f.r.Merge(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete evicts the entities named by body. It accepts record objects, a
// bare id string or number, or an array of either.
func (f *Feed[T]) Delete(body []byte) error {
	for _, id := range f.deleteIDs(body) {
		if f.r.Evict(id) {
			f.r.logger.Debug().Str("id", id).Msg("entity evicted")
		}
	}
	return nil
}

func (f *Feed[T]) deleteIDs(body []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		f.r.drop(fmt.Errorf("%w: %v", normalize.ErrMalformed, err))
		return nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		items = []interface{}{raw}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v != "" {
				ids = append(ids, v)
			}
		case json.Number:
			ids = append(ids, v.String())
		case map[string]interface{}:
			if id, ok := f.r.codec.ResolveID(normalize.Payload(v)); ok {
				ids = append(ids, id)
			} else {
				f.r.drop(normalize.ErrUnidentifiable)
			}
		}
	}
	return ids
}
