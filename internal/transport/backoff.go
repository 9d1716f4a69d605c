// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package transport

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectConfig bounds reconnect scheduling.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts is the number of consecutive failed attempts after which
	// the adapter gives up. Zero means unlimited.
	MaxAttempts int
}

// DefaultReconnectConfig returns a 1s base delay growing by 1.5 per attempt,
// capped at one minute, with ten attempts.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   1.5,
		MaxAttempts:  10,
	}
}

// ReconnectPolicy yields the delay before each reconnect attempt: the base
// delay times Multiplier^attempt, without jitter, capped at MaxDelay.
// Delays never decrease until Reset.
type ReconnectPolicy struct {
	cfg      ReconnectConfig
	backoff  *backoff.ExponentialBackOff
	attempts int
}

// NewReconnectPolicy creates a policy. Non-positive fields take defaults.
func NewReconnectPolicy(cfg ReconnectConfig) *ReconnectPolicy {
	def := DefaultReconnectConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.InitialDelay)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	b.Reset()

	return &ReconnectPolicy{cfg: cfg, backoff: b}
}

// Next returns the delay before the next attempt, or false when the budget
// is exhausted.
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	if p.cfg.MaxAttempts > 0 && p.attempts >= p.cfg.MaxAttempts {
		return 0, false
	}
	p.attempts++
	return p.backoff.NextBackOff(), true
}

// Attempts returns the number of attempts handed out since the last Reset.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

// Reset restarts the schedule after a successful connection.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
	p.backoff.Reset()
}
