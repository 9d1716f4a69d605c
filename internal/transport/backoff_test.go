// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"testing"
	"time"
)

func TestReconnectPolicy_GeometricAndBounded(t *testing.T) {
	t.Parallel()

	p := NewReconnectPolicy(ReconnectConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		MaxAttempts:  8,
	})

	var delays []time.Duration
	for {
		d, ok := p.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}

	if len(delays) != 8 {
		t.Fatalf("got %d attempts, want 8", len(delays))
	}
	if delays[0] != 100*time.Millisecond || delays[1] != 150*time.Millisecond || delays[2] != 225*time.Millisecond {
		t.Errorf("first delays = %v, want 100ms 150ms 225ms", delays[:3])
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Errorf("delay %d (%v) shorter than delay %d (%v)", i, delays[i], i-1, delays[i-1])
		}
		if delays[i] > time.Second {
			t.Errorf("delay %d = %v exceeds cap", i, delays[i])
		}
	}

	if _, ok := p.Next(); ok {
		t.Error("Next() after budget should keep returning false")
	}
}

func TestReconnectPolicy_Reset(t *testing.T) {
	t.Parallel()

	p := NewReconnectPolicy(ReconnectConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5, MaxAttempts: 2})
	p.Next()
	p.Next()
	if _, ok := p.Next(); ok {
		t.Fatal("budget should be exhausted")
	}

	p.Reset()
	d, ok := p.Next()
	if !ok || d != 10*time.Millisecond {
		t.Errorf("after Reset Next() = %v, %v; want 10ms, true", d, ok)
	}
	if p.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", p.Attempts())
	}
}

func TestReconnectPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := NewReconnectPolicy(ReconnectConfig{MaxAttempts: -1})
	for i := 0; i < 50; i++ {
		if _, ok := p.Next(); !ok {
			t.Fatal("zero or negative MaxAttempts should be unlimited")
		}
	}
	d, _ := p.Next()
	if d != time.Minute {
		t.Errorf("delay after many attempts = %v, want capped at 1m", d)
	}
}
