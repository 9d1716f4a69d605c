// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package services

import (
	"context"
	"fmt"
	"time"
)

// Shutdowner is a component that starts on construction and only needs a
// supervised stop, such as the embedded NATS server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownService parks until ctx ends, then shuts the component down
// within the timeout. It is never restarted after returning.
type ShutdownService struct {
	component       Shutdowner
	shutdownTimeout time.Duration
	name            string
}

// NewShutdownService wraps component under name.
func NewShutdownService(name string, component Shutdowner, shutdownTimeout time.Duration) *ShutdownService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &ShutdownService{component: component, shutdownTimeout: shutdownTimeout, name: name}
}

// Serve implements suture.Service.
func (s *ShutdownService) Serve(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.component.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *ShutdownService) String() string {
	return s.name
}
