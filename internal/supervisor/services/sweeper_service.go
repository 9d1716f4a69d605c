// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/models"
)

// Sweepable matches the livemap channels.
type Sweepable interface {
	Kind() models.Kind
	StaleAfter() time.Duration
	Sweep() []string
}

// SweeperService periodically evicts stale entries that never received a
// position. Channels with StaleAfter of zero are skipped.
type SweeperService struct {
	targets  []Sweepable
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeperService sweeps targets every interval (default one minute).
func NewSweeperService(interval time.Duration, targets ...Sweepable) *SweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	active := make([]Sweepable, 0, len(targets))
	for _, t := range targets {
		if t != nil && t.StaleAfter() > 0 {
			active = append(active, t)
		}
	}
	return &SweeperService{
		targets:  active,
		interval: interval,
		logger:   logging.WithComponent("sweeper"),
	}
}

// Len returns the number of channels being swept.
func (s *SweeperService) Len() int {
	return len(s.targets)
}

// SweepOnce sweeps every target and returns the number of evictions.
func (s *SweeperService) SweepOnce() int {
	total := 0
	for _, t := range s.targets {
		ids := t.Sweep()
		if len(ids) > 0 {
			s.logger.Info().
				Str("kind", string(t.Kind())).
				Int("evicted", len(ids)).
				Dur("stale_after", t.StaleAfter()).
				Msg("stale entries evicted")
		}
		total += len(ids)
	}
	return total
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	if len(s.targets) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *SweeperService) String() string {
	return "stale-sweeper"
}
