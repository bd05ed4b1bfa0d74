package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
)

// WSConfig holds WebSocket connection tuning.
type WSConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// WebSocketHandler upgrades device connections and streams hub events to
// them. Each connection is one hub subscription; events flow one way,
// server to client.
type WebSocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	config   WSConfig
}

// NewWebSocketHandler creates the push-stream endpoint handler.
func NewWebSocketHandler(h *hub.Hub, config WSConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleSessionSocket handles WebSocket connections for a session's event
// stream.
func (h *WebSocketHandler) HandleSessionSocket(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to upgrade WebSocket connection")
		return
	}

	sub := h.hub.Subscribe(code)
	client := &wsClient{
		id:     uuid.New().String(),
		userID: userID,
		code:   code,
		conn:   conn,
		sub:    sub,
		hub:    h.hub,
		config: h.config,
	}

	go client.writePump()
	go client.readPump()

	log.Info().
		Str("connection_id", client.id).
		Str("user_id", userID).
		Str("session_code", code).
		Msg("WebSocket connection established")
}

// RegisterRoutes registers the push-stream routes on a mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionSocket)
}

// wsClient pairs one WebSocket connection with one hub subscription.
type wsClient struct {
	id     string
	userID string
	code   string
	conn   *websocket.Conn
	sub    *hub.Subscription
	hub    *hub.Hub
	config WSConfig
}

// writePump streams subscription events to the socket and keeps the
// connection alive with pings. It owns all writes.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.Unsubscribe(c.sub)
	}()

	// Synthetic acknowledgment so the device knows the stream is up. It
	// carries no snapshot; clients must not treat it as a state change.
	ack := hub.Event{
		ID:          uuid.New().String(),
		SessionCode: c.code,
		Type:        hub.EventSessionUpdated,
		UpdateType:  hub.UpdateConnected,
		Timestamp:   time.Now().UTC(),
	}
	if err := c.writeEvent(ack); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-c.sub.Events():
			if !ok {
				// Hub tore the subscription down.
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeEvent(event); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write event to WebSocket")
				return
			}
			if event.Type == hub.EventSessionCleared {
				// Terminal event delivered; close the stream.
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *wsClient) writeEvent(event hub.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump drains client frames to keep pong handling working; the stream
// itself is server-to-client only.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
