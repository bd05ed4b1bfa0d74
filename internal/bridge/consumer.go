package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
)

// Consumer subscribes to the session event subjects and republishes into
// the local hub. A malformed payload is dropped and logged; it never kills
// the subscription.
type Consumer struct {
	nc     *nats.Conn
	hub    *hub.Hub
	prefix string
	sub    *nats.Subscription
}

// NewConsumer creates a consumer feeding the given hub.
func NewConsumer(nc *nats.Conn, h *hub.Hub, config Config) *Consumer {
	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Consumer{nc: nc, hub: h, prefix: prefix}
}

// Start subscribes to all session event subjects.
func (c *Consumer) Start() error {
	sub, err := c.nc.Subscribe(c.prefix+".>", c.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s.>: %w", c.prefix, err)
	}
	c.sub = sub
	log.Info().Str("subject", c.prefix+".>").Msg("event bridge consumer started")
	return nil
}

// Stop drains the subscription.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

func (c *Consumer) handle(msg *nats.Msg) {
	var event hub.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed bridge event")
		return
	}
	if event.SessionCode == "" {
		log.Error().Str("subject", msg.Subject).Msg("dropping bridge event without session code")
		return
	}

	if event.Type == hub.EventSessionCleared {
		// Terminal: close every local subscriber after the cleared event.
		c.hub.Teardown(event.SessionCode)
		return
	}
	c.hub.Publish(event.SessionCode, event)
}
