// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package config loads and validates Velomap configuration.

# Configuration Sources

Layers are applied in order, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. YAML file: $CONFIG_PATH, else config.yaml, config.yml,
    /etc/velomap/config.yaml, /etc/velomap/config.yml
 3. Environment variables with explicit mappings

Only mapped environment variables are read. List values
(STATIONS_UPDATE_TOPICS, BICYCLES_UPDATE_TOPICS, CORS_ORIGINS) accept
comma-separated strings.

# Sections

  - stations, bicycles: realtime upstream per entity kind (STATIONS_URL, ...)
  - reconnect: geometric backoff (RECONNECT_INITIAL_DELAY, RECONNECT_MULTIPLIER, RECONNECT_MAX_ATTEMPTS)
  - watchdog: heart-beats and liveness (HEARTBEAT_INTERVAL, WATCHDOG_TIMEOUT)
  - reference: HTTP reference stores (REFERENCE_STATIONS_URL, REFERENCE_API_KEY)
  - cache: spatial index and stale sweep (SPATIAL_CELL_KM)
  - server: HTTP API (HTTP_PORT, CORS_ORIGINS, RATE_LIMIT_REQUESTS, HTTP_COMPRESS)
  - nats: record republishing (NATS_ENABLED, NATS_URL, NATS_EMBEDDED)
  - logging: LOG_LEVEL, LOG_FORMAT, LOG_CALLER
  - supervisor: suture tree tuning

# Example

	stations:
	  url: wss://realtime.example.com/ws
	  login: velomap
	  passcode: secret
	  update_topics: [/topic/stations, /topic/stations/alerts]
	bicycles:
	  url: wss://realtime.example.com/ws
	  protocol: json
	  stale_after: 45m
	reconnect:
	  max_attempts: 0   # retry forever
	reference:
	  stations_url: https://api.example.com/v1/stations

# Validation

Struct tags are checked with go-playground/validator through
internal/validation; error messages use the koanf path
("stations.url must be a ws:// or wss:// URL"). Cross-field rules such as
"an enabled channel needs a URL" live in Validate.
*/
package config
