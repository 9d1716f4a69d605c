// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/velomap/internal/config"
	"github.com/tomtom215/velomap/internal/livecache"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/natsbridge"
	"github.com/tomtom215/velomap/internal/supervisor"
	"github.com/tomtom215/velomap/internal/supervisor/services"
)

// natsComponents holds the NATS pieces wired into the tree. server is nil
// when an external broker is used.
type natsComponents struct {
	server    *natsbridge.EmbeddedServer
	publisher *natsbridge.Publisher
}

// initNATS starts the optional embedded server and connects the
// publisher. It returns nil, nil when NATS is disabled.
func initNATS(cfg *config.Config, tree *supervisor.SupervisorTree) (*natsComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS republishing disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	nc := &natsComponents{}
	url := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		srv, err := natsbridge.NewEmbeddedServer(natsbridge.ServerConfig{
			Host: "127.0.0.1",
			Port: cfg.NATS.EmbeddedPort,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		nc.server = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	pub, err := natsbridge.Connect(natsbridge.Config{
		URL:           url,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Name:          "velomap",
	})
	if err != nil {
		if nc.server != nil {
			_ = nc.server.Shutdown(context.Background())
		}
		return nil, err
	}
	nc.publisher = pub

	tree.AddMessagingService(pub)
	if nc.server != nil {
		tree.AddMessagingService(services.NewShutdownService("nats-server", nc.server, cfg.Supervisor.ShutdownTimeout))
	}
	logging.Info().Str("url", logging.RedactURL(url)).Str("prefix", cfg.NATS.SubjectPrefix).Msg("NATS publisher added to supervisor tree")
	return nc, nil
}

func observeStations(nc *natsComponents) livecache.Observer[models.Station] {
	return natsbridge.Observe[models.Station](nc.publisher, models.KindStation)
}

func observeBicycles(nc *natsComponents) livecache.Observer[models.Bicycle] {
	return natsbridge.Observe[models.Bicycle](nc.publisher, models.KindBicycle)
}
