// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package natsbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/velomap/internal/livecache"
	"github.com/tomtom215/velomap/internal/logging"
	"github.com/tomtom215/velomap/internal/markers"
	"github.com/tomtom215/velomap/internal/metrics"
	"github.com/tomtom215/velomap/internal/models"
)

// DefaultSubjectPrefix is the first subject token of every message.
const DefaultSubjectPrefix = "velomap"

// DefaultFlushTimeout bounds Flush and Close when the caller supplies no
// deadline.
const DefaultFlushTimeout = 5 * time.Second

// Config configures a Publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	// Name identifies the connection on the server.
	Name string
}

// Event is the body of an entity or delete message.
type Event struct {
	Kind      models.Kind     `json:"kind"`
	ID        string          `json:"id"`
	Op        string          `json:"op"`
	Record    json.RawMessage `json:"record,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpState  = "state"
)

// Publisher republishes merged records on NATS subjects of the form
// <prefix>.<kind>.<id>, so other services can follow the live map without
// holding their own broker session. Messages go out through a Watermill
// publisher sharing the connection used for Subscribe and Flush.
type Publisher struct {
	nc        *nats.Conn
	wm        message.Publisher
	prefix    string
	logger    zerolog.Logger
	closeOnce sync.Once
}

// Connect dials the NATS server.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("natsbridge: url is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Name == "" {
		cfg.Name = "velomap"
	}

	logger := logging.WithComponent("natsbridge")
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	// Core NATS only; the embedded server runs without JetStream streams.
	wm, err := wmNats.NewPublisherWithNatsConn(nc, wmNats.PublisherPublishConfig{
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, watermill.NewSlogLogger(logging.NewSlogLogger("natsbridge")))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return &Publisher{nc: nc, wm: wm, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject returns the subject for one entity. Characters that are
// significant in NATS subjects are replaced in the id.
func (p *Publisher) Subject(kind models.Kind, id string) string {
	return p.prefix + "." + string(kind) + "." + subjectToken(id)
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// PublishRecord publishes an upsert for one entity.
func (p *Publisher) PublishRecord(kind models.Kind, id string, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		metrics.RecordNATSPublish(string(kind), err)
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return p.publish(p.Subject(kind, id), Event{Kind: kind, ID: id, Op: OpUpsert, Record: raw})
}

// PublishDelete publishes an eviction.
func (p *Publisher) PublishDelete(kind models.Kind, id string) error {
	return p.publish(p.Subject(kind, id), Event{Kind: kind, ID: id, Op: OpDelete})
}

// PublishState publishes a transport state change on <prefix>.<kind>.state.
func (p *Publisher) PublishState(kind models.Kind, state string) error {
	raw, _ := json.Marshal(state)
	return p.publish(p.prefix+"."+string(kind)+".state", Event{Kind: kind, Op: OpState, Record: raw})
}

func (p *Publisher) publish(subject string, ev Event) error {
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err == nil {
		msg := message.NewMessage(watermill.NewUUID(), data)
		msg.Metadata.Set("kind", string(ev.Kind))
		msg.Metadata.Set("op", ev.Op)
		err = p.wm.Publish(subject, msg)
	}
	metrics.RecordNATSPublish(string(ev.Kind), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Observe returns a reconciler observer that publishes each merge. Publish
// failures are logged and never reach the reconciler.
func Observe[T any](p *Publisher, kind models.Kind) livecache.Observer[T] {
	return func(id string, merged T) {
		if err := p.PublishRecord(kind, id, merged); err != nil {
			p.logger.Debug().Err(err).Str("kind", string(kind)).Str("id", id).Msg("publish failed")
		}
	}
}

// DeleteSurface publishes a delete whenever a marker leaves the map. It
// ignores attaches and updates, which Observe already covers.
type DeleteSurface struct {
	p *Publisher
}

var _ markers.Surface = DeleteSurface{}

// Deletes returns a surface that publishes marker removals.
func (p *Publisher) Deletes() DeleteSurface {
	return DeleteSurface{p: p}
}

func (DeleteSurface) Attach(markers.MarkerView) {}
func (DeleteSurface) Update(markers.MarkerView) {}

// Detach implements markers.Surface.
func (d DeleteSurface) Detach(kind models.Kind, id string) {
	if err := d.p.PublishDelete(kind, id); err != nil {
		d.p.logger.Debug().Err(err).Str("kind", string(kind)).Str("id", id).Msg("publish delete failed")
	}
}

// Subscribe delivers decoded events for kind until the returned
// subscription is drained. An empty kind subscribes to every kind.
func (p *Publisher) Subscribe(kind models.Kind, handler func(Event)) (*nats.Subscription, error) {
	subject := p.prefix + ".>"
	if kind != "" {
		subject = p.prefix + "." + string(kind) + ".*"
	}
	return p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			p.logger.Debug().Err(err).Str("subject", msg.Subject).Msg("undecodable event")
			return
		}
		handler(ev)
	})
}

// Flush waits for the server to acknowledge buffered publishes. A context
// without a deadline is bounded by DefaultFlushTimeout.
func (p *Publisher) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	return p.nc.FlushWithContext(ctx)
}

// IsConnected reports whether the connection is up.
func (p *Publisher) IsConnected() bool {
	return p.nc.IsConnected()
}

// Close flushes pending publishes, then closes the Watermill publisher
// and the connection. It is safe to call more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.nc.IsConnected() {
			if err := p.nc.FlushTimeout(DefaultFlushTimeout); err != nil {
				p.logger.Debug().Err(err).Msg("flush before close failed")
			}
		}
		if err := p.wm.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("close watermill publisher")
		}
		p.nc.Close()
	})
}

// Serve holds the connection open until ctx is canceled, then closes it.
// It implements suture.Service.
func (p *Publisher) Serve(ctx context.Context) error {
	<-ctx.Done()
	p.Close()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (p *Publisher) String() string {
	return "nats-publisher"
}
