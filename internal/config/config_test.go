// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// validConfig returns defaults with both upstream URLs set.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Stations.URL = "wss://rt.example.com/ws"
	cfg.Bicycles.URL = "wss://rt.example.com/ws"
	return cfg
}

func TestDefaultConfig_NeedsOnlyURLs(t *testing.T) {
	t.Parallel()
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := defaultConfig().Validate(); err == nil {
		t.Fatal("defaults without URLs should not validate")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "enabled without url",
			mutate:  func(c *Config) { c.Bicycles.URL = "" },
			wantErr: "bicycles.url is required",
		},
		{
			name:    "disabled without url",
			mutate:  func(c *Config) { c.Bicycles.Enabled = false; c.Bicycles.URL = "" },
			wantErr: "",
		},
		{
			name:    "http scheme",
			mutate:  func(c *Config) { c.Stations.URL = "https://rt.example.com" },
			wantErr: "stations.url must be a ws:// or wss:// URL",
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.Stations.Protocol = "mqtt" },
			wantErr: "stations.protocol must be one of",
		},
		{
			name:    "no channels",
			mutate:  func(c *Config) { c.Stations.Enabled = false; c.Bicycles.Enabled = false },
			wantErr: ErrNoChannels.Error(),
		},
		{
			name:    "no topics",
			mutate:  func(c *Config) { c.Stations.BulkTopic = ""; c.Stations.UpdateTopics = nil },
			wantErr: "bulk_topic or update_topics",
		},
		{
			name:    "update topic equals bulk topic",
			mutate:  func(c *Config) { c.Stations.UpdateTopics = []string{c.Stations.BulkTopic} },
			wantErr: "both bulk and update",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Reconnect.Multiplier = 0.5 },
			wantErr: "reconnect.multiplier",
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *Config) { c.Reconnect.MaxDelay = 100 * time.Millisecond },
			wantErr: "reconnect.max_delay",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Reconnect.MaxAttempts = -1 },
			wantErr: "reconnect.max_attempts",
		},
		{
			name:    "watchdog shorter than heartbeat",
			mutate:  func(c *Config) { c.Watchdog.Timeout = 5 * time.Second },
			wantErr: "watchdog.timeout",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
			wantErr: "nats.url is required",
		},
		{
			name:    "nats embedded ignores url",
			mutate:  func(c *Config) { c.NATS.Enabled = true; c.NATS.EmbeddedServer = true; c.NATS.URL = "" },
			wantErr: "",
		},
		{
			name:    "reference url must be a url",
			mutate:  func(c *Config) { c.Reference.StationsURL = "not a url" },
			wantErr: "reference.stations_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NoChannelsIsSentinel(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stations.Enabled = false
	cfg.Bicycles.Enabled = false
	if err := cfg.Validate(); !errors.Is(err, ErrNoChannels) {
		t.Errorf("Validate() = %v, want ErrNoChannels", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"STATIONS_URL":           "stations.url",
		"BICYCLES_UPDATE_TOPICS": "bicycles.update_topics",
		"BICYCLES_STALE_AFTER":   "bicycles.stale_after",
		"RECONNECT_MAX_ATTEMPTS": "reconnect.max_attempts",
		"HTTP_PORT":              "server.port",
		"SLOW_REQUEST_THRESHOLD": "server.slow_request_threshold",
		"NATS_EMBEDDED":          "nats.embedded_server",
		"LOG_LEVEL":              "logging.level",
		"PATH":                   "",
		"HOME":                   "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

// The tests below mutate the process environment and do not run in
// parallel.

func TestLoadFrom_EnvOverridesFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
stations:
  url: wss://file.example.com/ws
  update_topics: [/topic/a, /topic/b]
bicycles:
  url: wss://file.example.com/ws
  protocol: json
reconnect:
  max_attempts: 4
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STATIONS_URL", "wss://env.example.com/ws")
	t.Setenv("BICYCLES_UPDATE_TOPICS", "/topic/x, /topic/y,")
	t.Setenv("RECONNECT_MULTIPLIER", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}

	if cfg.Stations.URL != "wss://env.example.com/ws" {
		t.Errorf("stations.url = %q, env should win", cfg.Stations.URL)
	}
	if !reflect.DeepEqual(cfg.Stations.UpdateTopics, []string{"/topic/a", "/topic/b"}) {
		t.Errorf("stations.update_topics = %v", cfg.Stations.UpdateTopics)
	}
	if !reflect.DeepEqual(cfg.Bicycles.UpdateTopics, []string{"/topic/x", "/topic/y"}) {
		t.Errorf("bicycles.update_topics = %v", cfg.Bicycles.UpdateTopics)
	}
	if cfg.Bicycles.Protocol != "json" {
		t.Errorf("bicycles.protocol = %q", cfg.Bicycles.Protocol)
	}
	if cfg.Reconnect.MaxAttempts != 4 || cfg.Reconnect.Multiplier != 2 {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Reconnect.InitialDelay != time.Second {
		t.Errorf("reconnect.initial_delay default lost: %s", cfg.Reconnect.InitialDelay)
	}
	if cfg.Server.Port != 9000 || cfg.Logging.Level != "debug" {
		t.Errorf("server.port=%d logging.level=%q", cfg.Server.Port, cfg.Logging.Level)
	}
}

func TestLoadFrom_InvalidFails(t *testing.T) {
	t.Setenv("STATIONS_URL", "")
	t.Setenv("BICYCLES_URL", "")
	if _, err := LoadFrom(""); err == nil {
		t.Fatal("LoadFrom() without upstream URLs succeeded")
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestChannelOptions(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stations.Login = "user"
	cfg.Reconnect.MaxAttempts = 3

	opts := cfg.ChannelOptions(cfg.Stations)
	if opts.Transport.URL != cfg.Stations.URL || opts.Transport.Login != "user" {
		t.Errorf("transport = %+v", opts.Transport)
	}
	if opts.Transport.Reconnect.MaxAttempts != 3 || opts.Transport.Reconnect.Multiplier != 1.5 {
		t.Errorf("reconnect = %+v", opts.Transport.Reconnect)
	}
	if opts.Transport.WatchdogTimeout != 30*time.Second {
		t.Errorf("watchdog = %s", opts.Transport.WatchdogTimeout)
	}
	if !opts.Preload {
		t.Error("stations preload default lost")
	}
	if opts.Transport.Kind != "" {
		t.Errorf("kind should be set by livemap, got %q", opts.Transport.Kind)
	}
}

func TestReferenceStoreConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Reference.APIKey = "k"

	rc := cfg.ReferenceStoreConfig("https://api.example.com/stations")
	if rc.URL != "https://api.example.com/stations" {
		t.Errorf("URL = %q", rc.URL)
	}
	if got := rc.Header.Get("X-Api-Key"); got != "k" {
		t.Errorf("api key header = %q", got)
	}
	if rc.Breaker.ConsecutiveFailures != 3 {
		t.Errorf("breaker = %+v", rc.Breaker)
	}

	cfg.Reference.APIKey = ""
	if h := cfg.ReferenceStoreConfig("x").Header; h != nil {
		t.Errorf("header without key = %v", h)
	}
}
