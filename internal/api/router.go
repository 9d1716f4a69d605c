// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/velomap/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware     MiddlewareConfig
	MetricsEnabled bool
	// Compress gzips /api/v1 responses for clients that accept it.
	Compress bool
}

// NewRouter wires every route.
//
//	GET  /health                     liveness
//	GET  /health/ready               503 until a channel is live
//	GET  /metrics                    Prometheus (when enabled)
//	GET  /ws                         marker stream
//	GET  /api/v1/status
//	GET  /api/v1/nearby              all kinds
//	GET  /api/v1/performance         per-route latency
//	GET  /api/v1/{kind}              merged records, paginated
//	GET  /api/v1/{kind}/markers
//	GET  /api/v1/{kind}/nearby
//	POST /api/v1/{kind}/reload
//	GET  /api/v1/{kind}/{id}
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.Middleware)) // global so OPTIONS preflight is answered
	r.Use(AccessLog)

	r.Route("/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/", h.Health)
		r.Get("/ready", h.Ready)
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Upgrades are not wrapped by the metrics writer or security headers.
	r.With(RateLimit(cfg.Middleware.RateLimitRequests, cfg.Middleware.RateLimitWindow)).
		Get("/ws", h.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)
		r.Use(APISecurityHeaders())
		r.Use(RateLimit(cfg.Middleware.RateLimitRequests, cfg.Middleware.RateLimitWindow))
		if h.perf != nil {
			r.Use(h.perf.Middleware)
		}
		if cfg.Compress {
			r.Use(middleware.Compression)
		}

		r.Get("/status", h.Status)
		r.Get("/nearby", h.Nearby)
		r.Get("/performance", h.Performance)
		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Get("/markers", h.ListMarkers)
			r.Get("/nearby", h.Nearby)
			r.Post("/reload", h.Reload)
			r.Get("/{id}", h.GetRecord)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("no route for " + r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}
