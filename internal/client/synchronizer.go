// Package client implements the device side of session synchronization: a
// push subscription with bounded reconnection, a polling fallback, and the
// step reconciler that decides which screen a device should render.
package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// ConnState is the push connection's state machine position.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateError        ConnState = "error"
)

// SyncConfig holds push connection tuning.
type SyncConfig struct {
	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts caps reconnection; once exhausted the
	// synchronizer stays in StateError and stops scheduling attempts.
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
}

// DefaultSyncConfig returns the default synchronizer configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
	}
}

// wsConn is the subset of the WebSocket connection the synchronizer needs.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc opens a push connection to the given URL.
type DialFunc func(rawURL string) (wsConn, error)

func gorillaDial(config SyncConfig) DialFunc {
	return func(rawURL string) (wsConn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
		conn, _, err := dialer.Dial(rawURL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Synchronizer maintains exactly one push connection per device. Switching
// sessions tears down the old connection and synchronously cancels any
// pending reconnect, so a stale subscription can never leak across
// sessions.
type Synchronizer struct {
	// OnUpdate is invoked with each real session snapshot received. Set
	// before the first SetSession call.
	OnUpdate func(sess *models.Session)
	// OnCleared is invoked when the server reports the session no longer
	// exists. The synchronizer has already stopped reconnecting by then.
	OnCleared func(code string)

	baseURL string
	config  SyncConfig
	clock   clockwork.Clock
	dial    DialFunc

	mu             sync.Mutex
	gen            int
	wantConnected  bool
	state          ConnState
	attempts       int
	conn           wsConn
	sessionCode    string
	userID         string
	snapshot       *models.Session
	gotRealUpdate  bool
	lastHeartbeat  time.Time
	reconnectTimer clockwork.Timer
}

// NewSynchronizer creates a synchronizer dialing with gorilla/websocket.
func NewSynchronizer(baseURL string, config SyncConfig) *Synchronizer {
	return NewSynchronizerWithDeps(baseURL, config, clockwork.NewRealClock(), gorillaDial(config))
}

// NewSynchronizerWithDeps creates a synchronizer with an injected clock and
// dialer for deterministic tests.
func NewSynchronizerWithDeps(baseURL string, config SyncConfig, clock clockwork.Clock, dial DialFunc) *Synchronizer {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultSyncConfig().ReconnectDelay
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = DefaultSyncConfig().MaxReconnectAttempts
	}
	return &Synchronizer{
		baseURL: baseURL,
		config:  config,
		clock:   clock,
		dial:    dial,
		state:   StateDisconnected,
	}
}

// SetSession points the synchronizer at a session, tearing down any
// existing connection for a previous session first.
func (s *Synchronizer) SetSession(code, userID string) {
	s.mu.Lock()
	s.teardownLocked()
	s.sessionCode = code
	s.userID = userID
	s.snapshot = nil
	s.gotRealUpdate = false
	s.attempts = 0
	s.wantConnected = true
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	go s.connect(gen)
}

// Stop clears the connection-governing flag and closes any connection. Any
// pending reconnect is cancelled before Stop returns, so no orphaned
// attempt can fire afterwards.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.teardownLocked()
	s.state = StateDisconnected
	s.mu.Unlock()
}

// teardownLocked invalidates the current connection generation. Caller
// holds s.mu.
func (s *Synchronizer) teardownLocked() {
	s.gen++
	s.wantConnected = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// State returns the connection state.
func (s *Synchronizer) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether push is currently the authoritative source: the
// connection is up and at least one real update has arrived.
func (s *Synchronizer) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.gotRealUpdate
}

// LastHeartbeat returns the time of the most recent keep-alive.
func (s *Synchronizer) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// EffectiveSession composes push and poll: the push snapshot wins when the
// connection is live with at least one real update, otherwise the supplied
// polled snapshot is authoritative. The UI is never left waiting on push.
func (s *Synchronizer) EffectiveSession(polled *models.Session) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected && s.gotRealUpdate && s.snapshot != nil {
		return s.snapshot
	}
	return polled
}

func (s *Synchronizer) connect(gen int) {
	s.mu.Lock()
	if gen != s.gen || !s.wantConnected {
		s.mu.Unlock()
		return
	}
	code, userID := s.sessionCode, s.userID
	s.mu.Unlock()

	rawURL := fmt.Sprintf("%s/ws/session?code=%s&user_id=%s",
		s.baseURL, url.QueryEscape(code), url.QueryEscape(userID))
	conn, err := s.dial(rawURL)

	s.mu.Lock()
	if gen != s.gen || !s.wantConnected {
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("session_code", code).Msg("push connection failed")
		s.scheduleReconnectLocked(gen)
		s.mu.Unlock()
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.attempts = 0
	s.mu.Unlock()

	log.Info().Str("session_code", code).Msg("push connection established")
	go s.readLoop(gen, conn)
}

func (s *Synchronizer) readLoop(gen int, conn wsConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(gen, err)
			return
		}

		var event hub.Event
		if err := json.Unmarshal(data, &event); err != nil {
			// One bad message must not kill the stream.
			log.Error().Err(err).Msg("dropping malformed push event")
			continue
		}

		switch event.Type {
		case hub.EventHeartbeat:
			s.mu.Lock()
			if gen == s.gen {
				s.lastHeartbeat = s.clock.Now()
			}
			s.mu.Unlock()

		case hub.EventSessionCleared:
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			code := s.sessionCode
			s.teardownLocked()
			s.state = StateDisconnected
			s.mu.Unlock()

			log.Info().Str("session_code", code).Msg("session cleared by server")
			if s.OnCleared != nil {
				s.OnCleared(code)
			}
			return

		case hub.EventSessionUpdated:
			if event.UpdateType == hub.UpdateConnected {
				// Synthetic connection acknowledgment carries no change;
				// treating it as one would trigger redundant recomputation.
				continue
			}
			if event.Session == nil {
				log.Warn().Str("update_type", string(event.UpdateType)).Msg("dropping session update without snapshot")
				continue
			}
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.snapshot = event.Session
			s.gotRealUpdate = true
			s.mu.Unlock()

			if s.OnUpdate != nil {
				s.OnUpdate(event.Session)
			}

		default:
			log.Debug().Str("event_type", string(event.Type)).Msg("ignoring unknown push event")
		}
	}
}

func (s *Synchronizer) handleDisconnect(gen int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.wantConnected {
		return
	}
	log.Warn().Err(cause).Str("session_code", s.sessionCode).Msg("push connection lost")
	s.conn = nil
	s.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms the next attempt or parks the synchronizer
// in StateError once the attempt budget is spent. Caller holds s.mu.
func (s *Synchronizer) scheduleReconnectLocked(gen int) {
	s.attempts++
	if s.attempts > s.config.MaxReconnectAttempts {
		s.state = StateError
		log.Error().
			Str("session_code", s.sessionCode).
			Int("attempts", s.attempts-1).
			Msg("reconnect attempts exhausted, push unavailable")
		return
	}

	s.state = StateReconnecting
	s.reconnectTimer = s.clock.AfterFunc(s.config.ReconnectDelay, func() {
		s.mu.Lock()
		if gen != s.gen || !s.wantConnected {
			s.mu.Unlock()
			return
		}
		s.state = StateConnecting
		s.mu.Unlock()
		s.connect(gen)
	})
}
