// Package bridge relays session events across server instances over NATS.
// Events stay ephemeral notifications: nothing here is durable, and a
// missed event is recovered by the next poll or reconnect snapshot.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default bridge settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "session.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Connect opens a NATS connection with logging handlers wired up.
func Connect(config Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Publisher is an EventSink that fans mutations out through NATS instead of
// the local hub; every instance's Consumer feeds its own hub.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher creates a NATS-backed event sink.
func NewPublisher(nc *nats.Conn, config Config) *Publisher {
	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Publish sends an event to the session's subject. Delivery is best-effort;
// a failed publish is logged, not surfaced, because durable truth lives in
// the session store.
func (p *Publisher) Publish(code string, event hub.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to marshal event")
		return
	}
	if err := p.nc.Publish(p.subject(code), data); err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to publish event")
	}
}

// Teardown broadcasts the terminal cleared notification for a session so
// each instance's consumer closes its local subscribers.
func (p *Publisher) Teardown(code string) {
	p.Publish(code, hub.NewClearedEvent(code, hub.UpdateSessionFinished))
}

func (p *Publisher) subject(code string) string {
	return p.prefix + "." + code
}
