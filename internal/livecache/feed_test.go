// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package livecache

import (
	"errors"
	"testing"

	"github.com/tomtom215/velomap/internal/normalize"
)

func TestFeed_MalformedBodyChangesNothing(t *testing.T) {
	t.Parallel()
	h := newBicycleHarness(t, nil)
	feed := NewFeed(h.rec, false)

	if err := feed.Bulk([]byte(`[{"id":"b1","lat":40.4,"lon":-3.7}]`)); err != nil {
		t.Fatalf("Bulk: %v", err)
	}

	for _, body := range []string{`{"id":"b1","lat":`, "\xff\xfe", ``} {
		if err := feed.Update([]byte(body)); !errors.Is(err, normalize.ErrMalformed) {
			t.Errorf("Update(%q) err = %v, want ErrMalformed", body, err)
		}
	}
	if err := feed.Bulk([]byte(`not json`)); !errors.Is(err, normalize.ErrMalformed) {
		t.Errorf("Bulk err = %v, want ErrMalformed", err)
	}

	if h.rec.Len() != 1 || h.pool.Size() != 1 {
		t.Errorf("cache=%d pool=%d, want 1 and 1", h.rec.Len(), h.pool.Size())
	}
}

func TestFeed_UpdateBatchContinuesPastBadEntries(t *testing.T) {
	t.Parallel()
	h := newBicycleHarness(t, nil)
	feed := NewFeed(h.rec, false)

	err := feed.Update([]byte(`[
		{"id":"b1","lat":40.4,"lon":-3.7},
		{"mystery":true},
		{"bikeId":"b2","lat":40.5,"lon":-3.7}
	]`))
	if !errors.Is(err, normalize.ErrUnidentifiable) {
		t.Errorf("err = %v, want joined ErrUnidentifiable", err)
	}
	if h.rec.Len() != 2 || h.pool.Size() != 2 {
		t.Errorf("cache=%d pool=%d, want 2 and 2", h.rec.Len(), h.pool.Size())
	}
}

func TestFeed_BulkWrappedSnapshot(t *testing.T) {
	t.Parallel()
	h := newBicycleHarness(t, nil)
	feed := NewFeed(h.rec, true)

	feed.Bulk([]byte(`{"data":[{"id":"a","lat":40.4,"lon":-3.7},{"id":"b","lat":40.5,"lon":-3.7}]}`))
	feed.Bulk([]byte(`{"data":[{"id":"b","lat":40.5,"lon":-3.7}]}`))

	if h.rec.Len() != 1 {
		t.Errorf("cache len = %d, want 1 with pruning", h.rec.Len())
	}
}

func TestFeed_Delete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		left int
	}{
		{"bare string", `"a"`, 3},
		{"bare number", `7`, 3},
		{"object", `{"bikeId":"a"}`, 3},
		{"array of ids", `["a","b",7]`, 1},
		{"array of objects", `[{"id":"a"},{"id":"b"}]`, 2},
		{"malformed", `{"id":`, 4},
		{"unknown id", `"zz"`, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newBicycleHarness(t, nil)
			feed := NewFeed(h.rec, false)
			feed.Bulk([]byte(`[
				{"id":"a","lat":40.1,"lon":-3.7},
				{"id":"b","lat":40.2,"lon":-3.7},
				{"id":"c","lat":40.3,"lon":-3.7},
				{"id":7,"lat":40.4,"lon":-3.7}
			]`))

			feed.Delete([]byte(tt.body))

			if h.rec.Len() != tt.left {
				t.Errorf("cache len = %d, want %d", h.rec.Len(), tt.left)
			}
			if h.pool.Size() != tt.left {
				t.Errorf("pool size = %d, want %d", h.pool.Size(), tt.left)
			}
		})
	}
}
