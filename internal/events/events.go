package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Kind is the gameplay event type.
type Kind string

const (
	KindMatch    Kind = "match"
	KindMismatch Kind = "mismatch"
	KindGameOver Kind = "gameover"
)

// Event is one gameplay outcome in one session.
type Event struct {
	Session string    `json:"session"`
	Kind    Kind      `json:"kind"`
	Cards   []int     `json:"cards,omitempty"`
	Score   int       `json:"score"`
	Combo   int       `json:"combo"`
	Best    int       `json:"best"`
	At      time.Time `json:"at"`
}

// Publisher delivers events outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// NATSPublisher publishes each event on <subject>.<session>.<kind>.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	log := logger.With().Str("component", "events").Logger()
	nc, err := nats.Connect(url,
		nats.Name("pairs"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected from nats")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to nats")
		}),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject, log: log}, nil
}

// Subject returns the subject ev is published on.
func (p *NATSPublisher) Subject(ev Event) string {
	return p.subject + "." + ev.Session + "." + string(ev.Kind)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(ev)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug().Str("subject", subject).Msg("event published")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
