// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

/*
Package supervisor provides process supervision for Velomap using suture v4.

# Overview

	RootSupervisor ("velomap")
	├── IngestSupervisor ("ingest-layer")
	│   ├── TransportService (one per enabled channel)
	│   ├── refstore.Store (one per configured reference URL)
	│   └── SweeperService
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   ├── natsbridge.Publisher (if NATS_ENABLED)
	│   └── ShutdownService "nats-server" (if NATS_EMBEDDED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer counts failures independently, so an upstream outage never
stops the API from serving the cached map.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), cfg.TreeConfig())
	if err != nil {
	    return err
	}
	tree.AddIngestService(services.NewTransportService(stations.Transport()))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor stopped")
	}

# Restart Policy

Suture restarts services that return, backing off after FailureThreshold
failures within the FailureDecay window. Transports are the exception:
they carry their own geometric reconnect schedule and return
suture.ErrDoNotRestart once it is exhausted (see services.TransportService).

# Logging

Supervisor events go through sutureslog to the slog logger passed to
NewSupervisorTree; logging.NewSlogLogger routes them into zerolog.
*/
package supervisor
