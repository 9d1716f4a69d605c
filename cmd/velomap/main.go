// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package main is the entry point for the Velomap server.
//
// Velomap holds a live, in-memory picture of a bike-sharing system: docking
// stations and bicycles streamed from a realtime backend over WebSocket
// (STOMP or plain JSON frames), merged into per-kind caches, and rendered
// into pooled map markers that share one descriptor per visual class.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config.yaml, environment (Koanf v2)
//  2. Fan-out surfaces: WebSocket hub, spatial index, NATS deletes
//  3. Reference stores (optional): HTTP snapshots behind a circuit breaker
//  4. Live channels: transport adapter, reconciler and marker pool per kind
//  5. NATS (optional): embedded server and record republishing
//  6. HTTP Server: REST API, /ws stream and Prometheus metrics
//
// Everything long-running is a suture service in one supervisor tree.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. Transports close their
// sockets, the HTTP server drains, and the NATS connection is flushed.
//
// # Example Usage
//
//	export STATIONS_URL=wss://realtime.example.com/ws
//	export STATIONS_LOGIN=velomap STATIONS_PASSCODE=secret
//	export BICYCLES_URL=wss://realtime.example.com/ws
//	export BICYCLES_PROTOCOL=json
//	export NATS_ENABLED=true NATS_EMBEDDED=true
//	./velomap
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/velomap/internal/api"
	"github.com/tomtom215/velomap/internal/config"
	"github.com/tomtom215/velomap/internal/livecache"
	"github.com/tomtom215/velomap/internal/livemap"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/middleware"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/refstore"
	"github.com/tomtom215/velomap/internal/supervisor"
	"github.com/tomtom215/velomap/internal/supervisor/services"
	"github.com/tomtom215/velomap/internal/transport"
	ws "github.com/tomtom215/velomap/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingSettings())
	metrics.SetAppInfo(version)

	logging.Info().
		Str("version", version).
		Bool("stations", cfg.Stations.Enabled).
		Bool("bicycles", cfg.Bicycles.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting Velomap with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), cfg.TreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Fan-out surfaces. The NATS delete surface joins the tee once the
	// publisher is connected.
	hub := ws.NewHub()
	spatial := markers.NewSpatialSurface(cfg.Cache.SpatialCellKm)
	surfaces := []markers.Surface{hub, spatial}

	nc, err := initNATS(cfg, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}
	if nc != nil {
		surfaces = append(surfaces, nc.publisher.Deletes())
	}
	tee := markers.NewTee(surfaces...)

	var (
		stations *livemap.Stations
		bicycles *livemap.Bicycles
		channels []api.Channel
		sweep    []services.Sweepable
	)

	if cfg.Stations.Enabled {
		var ref livecache.ReferenceStore[models.Station]
		if cfg.Reference.StationsURL != "" {
			store, err := refstore.NewStations(cfg.ReferenceStoreConfig(cfg.Reference.StationsURL), nil)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to create station reference store")
			}
			tree.AddIngestService(store)
			ref = store
		}
		stations, err = livemap.NewStations(cfg.ChannelOptions(cfg.Stations), tee, ref)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create station channel")
		}
		channels = append(channels, api.Live(stations))
		sweep = append(sweep, stations)
		superviseChannel(tree, hub, nc, stations.Transport())
		if nc != nil {
			stations.Subscribe(observeStations(nc))
		}
	}

	if cfg.Bicycles.Enabled {
		var ref livecache.ReferenceStore[models.Bicycle]
		if cfg.Reference.BicyclesURL != "" {
			store, err := refstore.NewBicycles(cfg.ReferenceStoreConfig(cfg.Reference.BicyclesURL), nil)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to create bicycle reference store")
			}
			tree.AddIngestService(store)
			ref = store
		}
		bicycles, err = livemap.NewBicycles(cfg.ChannelOptions(cfg.Bicycles), tee, ref)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create bicycle channel")
		}
		channels = append(channels, api.Live(bicycles))
		sweep = append(sweep, bicycles)
		superviseChannel(tree, hub, nc, bicycles.Transport())
		if nc != nil {
			bicycles.Subscribe(observeBicycles(nc))
		}
	}

	// New WebSocket clients receive the current markers before deltas.
	hub.SetSnapshotSource(func() []markers.MarkerView {
		var views []markers.MarkerView
		if stations != nil {
			views = append(views, stations.Markers()...)
		}
		if bicycles != nil {
			views = append(views, bicycles.Markers()...)
		}
		return views
	})

	if sweeper := services.NewSweeperService(cfg.Cache.SweepInterval, sweep...); sweeper.Len() > 0 {
		tree.AddIngestService(sweeper)
	}
	tree.AddMessagingService(services.NewWebSocketHubService(hub))

	deps := api.Deps{
		Channels: channels,
		Nearby:   spatial,
		Hub:      hub,
		Version:  version,

		Performance: middleware.NewPerformanceMonitor(1000, cfg.Server.SlowRequestThreshold),
	}
	if nc != nil {
		deps.NATS = nc.publisher
	}
	mw := api.DefaultMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mw.RateLimitRequests = cfg.Server.RateLimitRequests
	mw.RateLimitWindow = cfg.Server.RateLimitWindow

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.NewHandler(deps, cfg.Server.CORSOrigins), api.RouterConfig{
			Middleware:     mw,
			MetricsEnabled: cfg.Server.MetricsEnabled,
			Compress:       cfg.Server.Compress,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if stations != nil {
		stations.Close()
	}
	if bicycles != nil {
		bicycles.Close()
	}
	logging.Info().Msg("Application stopped gracefully")
}

// superviseChannel puts the transport under the ingest layer and mirrors
// its state changes to WebSocket clients and NATS.
func superviseChannel(tree *supervisor.SupervisorTree, hub *ws.Hub, nc *natsComponents, adapter *transport.Adapter) {
	kind := adapter.Kind()
	adapter.OnStateChange(func(_, to transport.State) {
		hub.BroadcastTransportState(kind, to.String())
		if nc != nil {
			if err := nc.publisher.PublishState(kind, to.String()); err != nil {
				logging.Debug().Err(err).Str("kind", string(kind)).Msg("publish state failed")
			}
		}
	})
	tree.AddIngestService(services.NewTransportService(adapter))
	logging.Info().Str("service", adapter.String()).Msg("Transport added to supervisor tree")
}
