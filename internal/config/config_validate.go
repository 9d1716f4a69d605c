// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/velomap/internal/validation"
)

// ErrNoChannels is returned when neither channel is enabled.
var ErrNoChannels = errors.New("at least one of stations or bicycles must be enabled")

// Validate checks struct tags first, then the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if !c.Stations.Enabled && !c.Bicycles.Enabled {
		return ErrNoChannels
	}
	if err := validateChannel("stations", &c.Stations); err != nil {
		return err
	}
	if err := validateChannel("bicycles", &c.Bicycles); err != nil {
		return err
	}
	if err := c.validateWatchdog(); err != nil {
		return err
	}
	return c.validateNATS()
}

func validateChannel(section string, ch *ChannelConfig) error {
	if !ch.Enabled {
		return nil
	}
	if ch.URL == "" {
		return fmt.Errorf("%s.url is required when %s.enabled is true (set %s_URL)",
			section, section, strings.ToUpper(section))
	}
	if ch.BulkTopic == "" && len(ch.UpdateTopics) == 0 {
		return fmt.Errorf("%s: bulk_topic or update_topics must be set", section)
	}
	for _, topic := range ch.UpdateTopics {
		if topic == ch.BulkTopic {
			return fmt.Errorf("%s: topic %q is both bulk and update", section, topic)
		}
		if ch.DeleteTopic != "" && topic == ch.DeleteTopic {
			return fmt.Errorf("%s: topic %q is both update and delete", section, topic)
		}
	}
	return nil
}

func (c *Config) validateWatchdog() error {
	if c.Watchdog.Timeout > 0 && c.Watchdog.Timeout <= c.Watchdog.HeartbeatInterval {
		return fmt.Errorf("watchdog.timeout (%s) must exceed watchdog.heartbeat_interval (%s)",
			c.Watchdog.Timeout, c.Watchdog.HeartbeatInterval)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled || c.NATS.EmbeddedServer {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without the embedded server")
	}
	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("nats.url must use nats:// or tls://, got %q", c.NATS.URL)
	}
	return nil
}
