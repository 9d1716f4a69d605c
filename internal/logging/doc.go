// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package logging provides the zerolog-based structured logger shared by
// every Velomap component.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	log := logging.WithComponent("transport")
//	log.Info().Str("kind", "stations").Msg("Connected")
//
// Component loggers are plain zerolog.Logger values captured at
// construction time. Call Init before building components so they inherit
// the configured output and level.
//
// # Configuration
//
// Configuration comes from internal/config (LOG_LEVEL, LOG_FORMAT,
// LOG_CALLER). Levels: trace, debug, info, warn, error, fatal, panic,
// disabled.
//
// # Request Context
//
// The HTTP layer stores a request id in the context; Ctx returns a logger
// carrying it:
//
//	logging.Ctx(r.Context()).Warn().Err(err).Msg("Nearby query rejected")
//
// # slog Adapter
//
// Suture logs through log/slog. NewSlogLogger bridges slog records into the
// global zerolog logger so supervisor events share the same output.
//
// # Redaction
//
// Upstream URLs and credentials are logged through RedactURL and
// RedactSecret, and arbitrary key/value pairs through RedactValue.
//
// # Output Formats
//
// JSON:
//
//	{"level":"info","component":"transport","kind":"stations","time":"2026-01-03T10:30:00Z","message":"Connected"}
//
// Console:
//
//	10:30:00 INF Connected component=transport kind=stations
package logging
