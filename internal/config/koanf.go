// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/velomap/internal/natsbridge"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/velomap/config.yaml",
	"/etc/velomap/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. Topic names follow the
// common /topic/<kind> layout; deployments override them per backend.
func defaultConfig() *Config {
	return &Config{
		Stations: ChannelConfig{
			Enabled:                true,
			Protocol:               "stomp",
			BulkTopic:              "/topic/stations/bulk",
			UpdateTopics:           []string{"/topic/stations"},
			DeleteTopic:            "/topic/stations/delete",
			BulkRequestDestination: "/app/stations/bulk",
			BulkReloadInterval:     5 * time.Second,
			Preload:                true,
		},
		Bicycles: ChannelConfig{
			Enabled:                true,
			Protocol:               "stomp",
			BulkTopic:              "/topic/bicycles/bulk",
			UpdateTopics:           []string{"/topic/bicycles"},
			DeleteTopic:            "/topic/bicycles/delete",
			BulkRequestDestination: "/app/bicycles/bulk",
			BulkReloadInterval:     5 * time.Second,
			StaleAfter:             30 * time.Minute,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   1.5,
			MaxAttempts:  10,
		},
		Watchdog: WatchdogConfig{
			HeartbeatInterval: 10 * time.Second,
			Timeout:           30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Reference: ReferenceConfig{
			APIKeyHeader:    "X-Api-Key",
			RefreshInterval: 5 * time.Minute,
			TTL:             15 * time.Minute,
			Timeout:         30 * time.Second,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			SpatialCellKm: 0.5,
			SweepInterval: time.Minute,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			MetricsEnabled:    true,
			Compress:          true,

			SlowRequestThreshold: time.Second,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedPort:   4222,
			SubjectPrefix:  natsbridge.DefaultSubjectPrefix,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load loads configuration with Koanf v2 from layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"stations.update_topics",
	"bicycles.update_topics",
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. YAML lists are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = buildEnvMappings()

func buildEnvMappings() map[string]string {
	m := map[string]string{
		// Reconnect
		"reconnect_initial_delay": "reconnect.initial_delay",
		"reconnect_max_delay":     "reconnect.max_delay",
		"reconnect_multiplier":    "reconnect.multiplier",
		"reconnect_max_attempts":  "reconnect.max_attempts",

		// Watchdog
		"heartbeat_interval": "watchdog.heartbeat_interval",
		"watchdog_timeout":   "watchdog.timeout",
		"handshake_timeout":  "watchdog.handshake_timeout",
		"write_timeout":      "watchdog.write_timeout",

		// Reference stores
		"reference_stations_url":     "reference.stations_url",
		"reference_bicycles_url":     "reference.bicycles_url",
		"reference_api_key":          "reference.api_key",
		"reference_api_key_header":   "reference.api_key_header",
		"reference_refresh_interval": "reference.refresh_interval",
		"reference_ttl":              "reference.ttl",
		"reference_timeout":          "reference.timeout",
		"reference_breaker_failures": "reference.breaker_failures",
		"reference_breaker_timeout":  "reference.breaker_timeout",

		// Cache
		"spatial_cell_km":      "cache.spatial_cell_km",
		"stale_sweep_interval": "cache.sweep_interval",

		// Server
		"http_host":              "server.host",
		"http_port":              "server.port",
		"http_read_timeout":      "server.read_timeout",
		"http_write_timeout":     "server.write_timeout",
		"http_shutdown_timeout":  "server.shutdown_timeout",
		"cors_origins":           "server.cors_origins",
		"rate_limit_requests":    "server.rate_limit_requests",
		"rate_limit_window":      "server.rate_limit_window",
		"metrics_enabled":        "server.metrics_enabled",
		"http_compress":          "server.compress",
		"slow_request_threshold": "server.slow_request_threshold",

		// NATS
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_embedded_port":  "nats.embedded_port",
		"nats_subject_prefix": "nats.subject_prefix",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Supervisor
		"supervisor_failure_threshold": "supervisor.failure_threshold",
		"supervisor_failure_decay":     "supervisor.failure_decay",
		"supervisor_failure_backoff":   "supervisor.failure_backoff",
		"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
	}

	channelKeys := []string{
		"enabled", "url", "protocol", "host", "login", "passcode",
		"bulk_topic", "update_topics", "delete_topic",
		"bulk_request_destination", "bulk_request_body", "bulk_reload_interval",
		"prune_on_bulk", "stale_after", "preload",
	}
	for _, section := range []string{"stations", "bicycles"} {
		for _, key := range channelKeys {
			m[section+"_"+key] = section + "." + key
		}
	}
	return m
}

// envTransformFunc maps an environment variable to a koanf path. Unmapped
// variables return "" and are skipped, so unrelated environment does not
// leak into the configuration.
//
// Examples:
//   - STATIONS_URL -> stations.url
//   - BICYCLES_UPDATE_TOPICS -> bicycles.update_topics
//   - RECONNECT_MAX_ATTEMPTS -> reconnect.max_attempts
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
