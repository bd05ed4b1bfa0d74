package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/session"
)

// StateHandler serves the polling fallback: a plain request/response fetch
// of the current session snapshot, independent of push status.
type StateHandler struct {
	store session.Store
	hub   *hub.Hub
}

// NewStateHandler creates the snapshot endpoint handler.
func NewStateHandler(store session.Store, h *hub.Hub) *StateHandler {
	return &StateHandler{store: store, hub: h}
}

// HandleGetSession handles GET /api/sessions/{code}.
func (h *StateHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, err := h.store.GetSession(r.Context(), code)
	if errors.Is(err, session.ErrSessionNotFound) {
		// 404 is the client's terminal "session gone" signal.
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to load session snapshot")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleConnectionStats handles GET /api/sessions/{code}/stats.
func (h *StateHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"subscribers":` + strconv.Itoa(h.hub.SubscriberCount(code)) + `}`))
}

// RegisterRoutes registers the snapshot routes on a mux.
func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{code}", h.HandleGetSession)
	mux.HandleFunc("GET /api/sessions/{code}/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
