package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/session"
)

// SessionHandler exposes the mutating session operations over HTTP. Caller
// identity comes from the user_id query parameter; in production this would
// come from an authenticated session.
type SessionHandler struct {
	app *session.App
}

// NewSessionHandler creates the mutation API handler.
func NewSessionHandler(app *session.App) *SessionHandler {
	return &SessionHandler{app: app}
}

// RegisterRoutes registers the mutation routes on a mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleCreate)
	mux.HandleFunc("POST /api/sessions/{code}/join", h.handleJoin)
	mux.HandleFunc("PUT /api/sessions/{code}/platforms", h.handleSetPlatforms)
	mux.HandleFunc("PUT /api/sessions/{code}/mode", h.handleSetMode)
	mux.HandleFunc("PUT /api/sessions/{code}/profile", h.handleSaveProfile)
	mux.HandleFunc("POST /api/sessions/{code}/close", h.handleCloseRegistration)
	mux.HandleFunc("POST /api/sessions/{code}/quiz/start", h.handleStartQuiz)
	mux.HandleFunc("POST /api/sessions/{code}/answers", h.handleSubmitAnswers)
	mux.HandleFunc("POST /api/sessions/{code}/finalize", h.handleFinalize)
	mux.HandleFunc("DELETE /api/sessions/{code}", h.handleDestroy)
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req session.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req session.JoinSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.JoinSession(r.Context(), r.PathValue("code"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleSetPlatforms(w http.ResponseWriter, r *http.Request) {
	var req session.SetPlatformsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.SetPlatforms(r.Context(), r.PathValue("code"), callerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req session.SetModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.SetMode(r.Context(), r.PathValue("code"), callerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req session.SaveProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.SaveProfile(r.Context(), r.PathValue("code"), callerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleCloseRegistration(w http.ResponseWriter, r *http.Request) {
	sess, err := h.app.CloseRegistration(r.Context(), r.PathValue("code"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	sess, err := h.app.StartQuiz(r.Context(), r.PathValue("code"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req session.SubmitAnswersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.SubmitAnswers(r.Context(), r.PathValue("code"), callerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type finalizeRequest struct {
	GroupAnalysis *models.GroupAnalysis `json:"group_analysis,omitempty"`
	MovieBatches  []models.MovieBatch   `json:"movie_batches,omitempty"`
}

func (h *SessionHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.app.FinalizeResults(r.Context(), r.PathValue("code"), callerID(r), req.GroupAnalysis, req.MovieBatches)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) handleDestroy(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DestroySession(r.Context(), r.PathValue("code")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func callerID(r *http.Request) string {
	return r.URL.Query().Get("user_id")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrProfileNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrNotAdmin):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, session.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrRegistrationClosed), errors.Is(err, session.ErrQuizAlreadyRecorded), errors.Is(err, session.ErrSessionExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("session operation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
