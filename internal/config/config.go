// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package config

import (
	"net/http"
	"time"

	"github.com/tomtom215/velomap/internal/livemap"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/refstore"
	"github.com/tomtom215/velomap/internal/supervisor"
	"github.com/tomtom215/velomap/internal/transport"
)

// Config holds all application configuration.
//
// Loading order (see Load):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables mapped by envTransformFunc
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Stations   ChannelConfig    `koanf:"stations"`
	Bicycles   ChannelConfig    `koanf:"bicycles"`
	Reconnect  ReconnectConfig  `koanf:"reconnect"`
	Watchdog   WatchdogConfig   `koanf:"watchdog"`
	Reference  ReferenceConfig  `koanf:"reference"`
	Cache      CacheConfig      `koanf:"cache"`
	Server     ServerConfig     `koanf:"server"`
	NATS       NATSConfig       `koanf:"nats"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ChannelConfig describes the realtime upstream of one entity kind.
//
// Environment Variables (stations shown; bicycles use the BICYCLES_ prefix):
//   - STATIONS_ENABLED, STATIONS_URL, STATIONS_PROTOCOL
//   - STATIONS_LOGIN, STATIONS_PASSCODE, STATIONS_HOST
//   - STATIONS_BULK_TOPIC, STATIONS_UPDATE_TOPICS (comma-separated), STATIONS_DELETE_TOPIC
//   - STATIONS_BULK_REQUEST_DESTINATION, STATIONS_BULK_REQUEST_BODY
//   - STATIONS_PRUNE_ON_BULK, STATIONS_STALE_AFTER, STATIONS_PRELOAD
type ChannelConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url" validate:"omitempty,wsurl"`
	Protocol string `koanf:"protocol" validate:"oneof=stomp json"`

	Host     string `koanf:"host"`
	Login    string `koanf:"login"`
	Passcode string `koanf:"passcode"`

	BulkTopic    string   `koanf:"bulk_topic"`
	UpdateTopics []string `koanf:"update_topics"`
	DeleteTopic  string   `koanf:"delete_topic"`

	BulkRequestDestination string `koanf:"bulk_request_destination"`
	BulkRequestBody        string `koanf:"bulk_request_body"`
	// BulkReloadInterval is the minimum spacing of manual reload requests.
	BulkReloadInterval time.Duration `koanf:"bulk_reload_interval" validate:"gte=0"`

	// PruneOnBulk evicts cached ids missing from a bulk snapshot.
	PruneOnBulk bool `koanf:"prune_on_bulk"`
	// StaleAfter sweeps entries that never had a position. Zero disables.
	StaleAfter time.Duration `koanf:"stale_after" validate:"gte=0"`
	// Preload materializes every descriptor at startup.
	Preload bool `koanf:"preload"`
}

// ReconnectConfig bounds reconnect scheduling for both channels. The delay
// before attempt n is InitialDelay * Multiplier^n, capped at MaxDelay.
type ReconnectConfig struct {
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `koanf:"max_delay" validate:"gtefield=InitialDelay"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
	// MaxAttempts of zero retries forever.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=0"`
}

// WatchdogConfig tunes liveness detection on open connections.
type WatchdogConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	// Timeout is the longest silence tolerated before forcing a reconnect.
	// Zero uses three heartbeat intervals.
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// ReferenceConfig configures the secondary reference stores. A store is
// created for each kind whose URL is set.
type ReferenceConfig struct {
	StationsURL     string        `koanf:"stations_url" validate:"omitempty,url"`
	BicyclesURL     string        `koanf:"bicycles_url" validate:"omitempty,url"`
	APIKey          string        `koanf:"api_key"`
	APIKeyHeader    string        `koanf:"api_key_header"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	TTL             time.Duration `koanf:"ttl" validate:"gte=0"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`

	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// CacheConfig configures the in-memory indexes built over the live state.
type CacheConfig struct {
	// SpatialCellKm is the grid cell size of the nearby index.
	SpatialCellKm float64 `koanf:"spatial_cell_km" validate:"gt=0,lte=100"`
	// SweepInterval is how often stale entries are swept when StaleAfter
	// is set on a channel.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	MetricsEnabled    bool          `koanf:"metrics_enabled"`
	Compress          bool          `koanf:"compress"`

	// SlowRequestThreshold logs API requests slower than this. Zero
	// disables the warning; latency is still tracked.
	SlowRequestThreshold time.Duration `koanf:"slow_request_threshold" validate:"gte=0"`
}

// NATSConfig configures republishing of merged records.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	// EmbeddedPort of -1 picks a free port.
	EmbeddedPort  int    `koanf:"embedded_port" validate:"gte=-1,lte=65535"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
}

// LoggingConfig mirrors logging.Config for file and env loading.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig mirrors the suture tree knobs.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// ChannelOptions assembles livemap options for one channel.
func (c *Config) ChannelOptions(ch ChannelConfig) livemap.Options {
	return livemap.Options{
		Transport: transport.Config{
			URL:                    ch.URL,
			Protocol:               ch.Protocol,
			Host:                   ch.Host,
			Login:                  ch.Login,
			Passcode:               ch.Passcode,
			BulkTopic:              ch.BulkTopic,
			UpdateTopics:           ch.UpdateTopics,
			DeleteTopic:            ch.DeleteTopic,
			BulkRequestDestination: ch.BulkRequestDestination,
			BulkRequestBody:        ch.BulkRequestBody,
			HandshakeTimeout:       c.Watchdog.HandshakeTimeout,
			WriteTimeout:           c.Watchdog.WriteTimeout,
			HeartbeatInterval:      c.Watchdog.HeartbeatInterval,
			WatchdogTimeout:        c.Watchdog.Timeout,
			BulkReloadInterval:     ch.BulkReloadInterval,
			Reconnect: transport.ReconnectConfig{
				InitialDelay: c.Reconnect.InitialDelay,
				MaxDelay:     c.Reconnect.MaxDelay,
				Multiplier:   c.Reconnect.Multiplier,
				MaxAttempts:  c.Reconnect.MaxAttempts,
			},
		},
		PruneOnBulk: ch.PruneOnBulk,
		StaleAfter:  ch.StaleAfter,
		Preload:     ch.Preload,
	}
}

// ReferenceStoreConfig returns the refstore configuration for url.
func (c *Config) ReferenceStoreConfig(url string) refstore.Config {
	var header http.Header
	if c.Reference.APIKey != "" {
		name := c.Reference.APIKeyHeader
		if name == "" {
			name = "X-Api-Key"
		}
		header = http.Header{}
		header.Set(name, c.Reference.APIKey)
	}
	return refstore.Config{
		URL:             url,
		Header:          header,
		RefreshInterval: c.Reference.RefreshInterval,
		TTL:             c.Reference.TTL,
		Timeout:         c.Reference.Timeout,
		Breaker: refstore.BreakerConfig{
			ConsecutiveFailures: c.Reference.BreakerFailures,
			Timeout:             c.Reference.BreakerTimeout,
		},
	}
}

// LoggingSettings returns the logging package configuration.
func (c *Config) LoggingSettings() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
	}
}

// TreeConfig returns the supervisor tree configuration.
func (c *Config) TreeConfig() supervisor.TreeConfig {
	return supervisor.TreeConfig{
		FailureThreshold: c.Supervisor.FailureThreshold,
		FailureDecay:     c.Supervisor.FailureDecay,
		FailureBackoff:   c.Supervisor.FailureBackoff,
		ShutdownTimeout:  c.Supervisor.ShutdownTimeout,
	}
}
