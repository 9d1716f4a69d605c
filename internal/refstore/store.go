// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package refstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/velomap/internal/cache"
	"github.com/tomtom215/velomap/internal/livecache"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
	"github.com/tomtom215/velomap/internal/normalize"
)

// maxBodyBytes bounds a reference response.
const maxBodyBytes = 32 << 20

// Config configures a Store.
type Config struct {
	// URL returns the full reference dataset for the kind as JSON.
	URL string
	// Header is added to every request, e.g. an API key.
	Header http.Header
	// RefreshInterval is the reload period used by Serve.
	RefreshInterval time.Duration
	// TTL bounds how long a record survives without being reloaded.
	TTL time.Duration
	// Timeout bounds one fetch.
	Timeout time.Duration
	Breaker BreakerConfig
}

func (c *Config) applyDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Minute
	}
	if c.TTL <= 0 {
		c.TTL = 3 * c.RefreshInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Store is a read-only secondary source of reference records, loaded in
// bulk over HTTP. GetByID never performs I/O; it answers from the last
// successful load.
type Store[T any] struct {
	cfg     Config
	codec   livecache.Codec[T]
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]T]
	records *cache.Cache[T]
	logger  zerolog.Logger

	lastLoad atomic.Int64 // unix nanos
}

// New creates a store. client may be nil.
func New[T any](codec livecache.Codec[T], cfg Config, client *http.Client) (*Store[T], error) {
	if cfg.URL == "" {
		return nil, errors.New("refstore: url is required")
	}
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	name := "refstore-" + string(codec.Kind)
	return &Store[T]{
		cfg:     cfg,
		codec:   codec,
		client:  client,
		breaker: newBreaker[[]T](name, cfg.Breaker),
		records: cache.New[T](cfg.TTL),
		logger:  logging.WithChannel("refstore", codec.Kind),
	}, nil
}

// NewStations creates a station reference store.
func NewStations(cfg Config, client *http.Client) (*Store[models.Station], error) {
	return New(livecache.StationCodec(), cfg, client)
}

// NewBicycles creates a bicycle reference store.
func NewBicycles(cfg Config, client *http.Client) (*Store[models.Bicycle], error) {
	return New(livecache.BicycleCodec(), cfg, client)
}

// GetByID returns the reference record for id.
func (s *Store[T]) GetByID(id string) (T, bool) {
	return s.records.Get(id)
}

// Len returns the number of loaded records.
func (s *Store[T]) Len() int {
	return s.records.Len()
}

// LastLoad returns the time of the last successful load.
func (s *Store[T]) LastLoad() time.Time {
	n := s.lastLoad.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Refresh reloads the dataset through the circuit breaker. On failure the
// previous records are kept until their TTL runs out.
func (s *Store[T]) Refresh(ctx context.Context) error {
	kind := string(s.codec.Kind)
	name := "refstore-" + kind
	start := time.Now()

	records, err := s.breaker.Execute(func() ([]T, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(s.breaker.Counts().ConsecutiveFailures))
		}
		metrics.RecordReferenceFetch(kind, result, time.Since(start))
		s.records.Cleanup()
		return fmt.Errorf("refstore %s: %w", kind, err)
	}

	byID := make(map[string]T, len(records))
	for _, rec := range records {
		byID[s.codec.IDOf(rec)] = rec
	}
	s.records.ReplaceAll(byID)
	s.lastLoad.Store(time.Now().UnixNano())

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	metrics.RecordReferenceFetch(kind, "success", time.Since(start))
	metrics.ReferenceRecords.WithLabelValues(kind).Set(float64(len(byID)))
	s.logger.Debug().Int("records", len(byID)).Dur("took", time.Since(start)).Msg("reference data loaded")
	return nil
}

func (s *Store[T]) fetch(ctx context.Context) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range s.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	payloads, err := normalize.ParseBatch(body)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(payloads))
	skipped := 0
	for _, p := range payloads {
		rec, err := s.codec.Decode(p, nil)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Msg("reference records without id skipped")
	}
	return out, nil
}

// Serve loads the dataset immediately and then every RefreshInterval
// until ctx is canceled. Failed loads are logged and retried on the next
// tick. It implements suture.Service.
func (s *Store[T]) Serve(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("initial reference load failed")
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("reference refresh failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Store[T]) String() string {
	return "refstore-" + string(s.codec.Kind)
}
