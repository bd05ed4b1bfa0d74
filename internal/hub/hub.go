// Package hub is the in-memory fan-out registry distributing session
// events to every connected device. It holds no durable state and may be
// rebuilt empty at any time without data loss.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds hub tuning knobs.
type Config struct {
	// SubscriberBuffer is the per-subscriber event queue depth. A subscriber
	// whose queue fills is disconnected rather than allowed to block
	// publishers.
	SubscriberBuffer int

	// HeartbeatInterval is how often keep-alive events are emitted to every
	// subscribed session.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		SubscriberBuffer:  32,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Subscription is one subscriber's handle on a session's event stream.
// Events arrive on Events() in publish order until the channel is closed.
type Subscription struct {
	ID          string
	SessionCode string

	ch chan Event
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Hub is the single owned registry of per-session subscribers. All mutation
// funnels through Subscribe, Unsubscribe, Publish and Teardown; the hub
// itself never touches the session store.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscription]struct{}

	config Config
	clock  clockwork.Clock
}

// New creates a hub with the given configuration.
func New(config Config) *Hub {
	return NewWithClock(config, clockwork.NewRealClock())
}

// NewWithClock creates a hub using an injected clock so heartbeat timing
// can be driven deterministically in tests.
func NewWithClock(config Config, clock clockwork.Clock) *Hub {
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	return &Hub{
		sessions: make(map[string]map[*Subscription]struct{}),
		config:   config,
		clock:    clock,
	}
}

// Run emits heartbeats until the context is cancelled. It is safe to use
// the hub without ever calling Run; only keep-alives are lost.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", h.config.HeartbeatInterval).Msg("event hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event hub shutting down")
			return
		case now := <-ticker.Chan():
			h.broadcastHeartbeats(now)
		}
	}
}

// Subscribe registers a new subscriber for a session's events.
func (h *Hub) Subscribe(code string) *Subscription {
	sub := &Subscription{
		ID:          uuid.New().String(),
		SessionCode: code,
		ch:          make(chan Event, h.config.SubscriberBuffer),
	}

	h.mu.Lock()
	if h.sessions[code] == nil {
		h.sessions[code] = make(map[*Subscription]struct{})
	}
	h.sessions[code][sub] = struct{}{}
	total := len(h.sessions[code])
	h.mu.Unlock()

	log.Debug().
		Str("subscription_id", sub.ID).
		Str("session_code", code).
		Int("subscribers", total).
		Msg("subscriber registered")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Calling it more
// than once for the same handle is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// removeLocked drops a subscription if still registered. Caller holds h.mu.
func (h *Hub) removeLocked(sub *Subscription) {
	subs, ok := h.sessions[sub.SessionCode]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.sessions, sub.SessionCode)
	}

	log.Debug().
		Str("subscription_id", sub.ID).
		Str("session_code", sub.SessionCode).
		Msg("subscriber removed")
}

// Publish delivers an event to every subscriber of a session. Publishing to
// a session with no subscribers is a silent no-op. A subscriber whose queue
// is full is dropped and closed so slow consumers never block publishers.
func (h *Hub) Publish(code string, event Event) {
	// Sends stay under the read lock: closes only happen under the write
	// lock, so a send can never race a close.
	h.mu.RLock()
	delivered := 0
	var stalled []*Subscription
	for sub := range h.sessions[code] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.RUnlock()

	if len(stalled) > 0 {
		h.mu.Lock()
		for _, sub := range stalled {
			log.Warn().
				Str("subscription_id", sub.ID).
				Str("session_code", code).
				Msg("subscriber queue full, disconnecting")
			h.removeLocked(sub)
		}
		h.mu.Unlock()
	}

	if delivered > 0 || len(stalled) > 0 {
		log.Debug().
			Str("session_code", code).
			Str("event_type", string(event.Type)).
			Str("update_type", string(event.UpdateType)).
			Int("delivered", delivered).
			Msg("event published")
	}
}

// Teardown force-closes every subscriber for a session, first publishing a
// terminal session_cleared notification so clients can tell the session
// ended rather than the network blipping. Used when a session is deleted or
// replaced.
func (h *Hub) Teardown(code string) {
	h.Publish(code, NewClearedEvent(code, UpdateSessionFinished))

	h.mu.Lock()
	subs := h.sessions[code]
	delete(h.sessions, code)
	for sub := range subs {
		close(sub.ch)
	}
	h.mu.Unlock()

	if len(subs) > 0 {
		log.Info().
			Str("session_code", code).
			Int("subscribers", len(subs)).
			Msg("session subscribers torn down")
	}
}

// SubscriberCount returns the number of active subscribers for a session.
func (h *Hub) SubscriberCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}

// broadcastHeartbeats emits a keep-alive to every subscribed session.
func (h *Hub) broadcastHeartbeats(now time.Time) {
	h.mu.RLock()
	codes := make([]string, 0, len(h.sessions))
	for code := range h.sessions {
		codes = append(codes, code)
	}
	h.mu.RUnlock()

	for _, code := range codes {
		h.Publish(code, newHeartbeat(code, now))
	}
}
