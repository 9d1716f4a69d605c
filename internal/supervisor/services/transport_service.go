// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/transport"
)

// TransportRunner matches *transport.Adapter.
type TransportRunner interface {
	Serve(ctx context.Context) error
	String() string
}

// TransportService supervises one realtime transport.
//
// The adapter owns its reconnect schedule. Once that budget is spent the
// service stops for good: suture must not add a second retry loop on top
// of a Failed transport.
type TransportService struct {
	adapter TransportRunner
	logger  zerolog.Logger
}

// NewTransportService wraps adapter.
func NewTransportService(adapter TransportRunner) *TransportService {
	return &TransportService{
		adapter: adapter,
		logger:  logging.WithComponent("supervisor").With().Str("service", adapter.String()).Logger(),
	}
}

// Serve implements suture.Service.
func (s *TransportService) Serve(ctx context.Context) error {
	err := s.adapter.Serve(ctx)
	switch {
	case err == nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Disconnect was called from outside the tree.
		s.logger.Info().Msg("transport disconnected, not restarting")
		return suture.ErrDoNotRestart
	case errors.Is(err, transport.ErrExhausted):
		s.logger.Error().Err(err).Msg("transport failed, not restarting")
		return suture.ErrDoNotRestart
	case errors.Is(err, transport.ErrRunning):
		// Someone else started the adapter with Connect.
		return suture.ErrDoNotRestart
	default:
		return fmt.Errorf("%s: %w", s.adapter.String(), err)
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *TransportService) String() string {
	return s.adapter.String()
}
