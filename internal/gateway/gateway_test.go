package gateway_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/gateway"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/session"
)

const (
	adminID       = "a1b2c3d4-0000-0000-0000-000000000001"
	participantID = "abcdef12-0000-0000-0000-000000000002"
)

type testServer struct {
	*httptest.Server
	hub *hub.Hub
	app *session.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := session.NewMemoryStore()
	h := hub.New(hub.Config{SubscriberBuffer: 8})
	app := session.NewApp(store, h, session.Config{TTL: time.Hour})

	mux := http.NewServeMux()
	gateway.NewSessionHandler(app).RegisterRoutes(mux)
	gateway.NewStateHandler(store, h).RegisterRoutes(mux)
	gateway.NewWebSocketHandler(h, gateway.DefaultWSConfig()).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: h, app: app}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = strings.NewReader("{}")
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) *models.Session {
	t.Helper()
	var sess models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	return &sess
}

func createSession(t *testing.T, s *testServer) *models.Session {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/sessions", session.CreateSessionRequest{AdminUserID: adminID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSession(t, resp)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	sess := createSession(t, s)
	code := sess.Code

	// Admin setup.
	resp := s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/platforms?user_id=%s", code, adminID),
		session.SetPlatformsRequest{Platforms: []string{"netflix"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/mode?user_id=%s", code, adminID),
		session.SetModeRequest{Mode: models.ModeGroup})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/profile?user_id=%s", code, adminID),
		session.SaveProfileRequest{Username: "movie_marta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Participant joins and completes their profile.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/join", code),
		session.JoinSessionRequest{UserID: participantID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeSession(t, resp)
	require.NotNil(t, joined.ProfileFor(participantID))

	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/close?user_id=%s", code, adminID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/profile?user_id=%s", code, participantID),
		session.SaveProfileRequest{Username: "film_fan"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusReadyForQuiz, decodeSession(t, resp).Status)

	// Quiz round trip.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/quiz/start?user_id=%s", code, adminID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	answers := session.SubmitAnswersRequest{Answers: []models.QuizAnswer{{QuestionID: "q1", Choice: "comedy"}}}
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/answers?user_id=%s", code, participantID), answers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/answers?user_id=%s", code, adminID), answers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusResults, decodeSession(t, resp).Status)

	// Polling endpoint reflects the same state.
	resp = s.do(t, http.MethodGet, "/api/sessions/"+code, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusResults, decodeSession(t, resp).Status)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	sess := createSession(t, s)
	code := sess.Code

	t.Run("unknown session is 404", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/sessions/NOPE01", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("non-admin mutation is 403", func(t *testing.T) {
		resp := s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/platforms?user_id=%s", code, participantID),
			session.SetPlatformsRequest{Platforms: []string{"netflix"}})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		resp := s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/platforms?user_id=%s", code, adminID),
			session.SetPlatformsRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, s.URL+"/api/sessions", strings.NewReader("{broken"))
		require.NoError(t, err)
		resp, err := s.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("join after close is 409", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/close?user_id=%s", code, adminID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%s/join", code),
			session.JoinSessionRequest{UserID: "late-arrival"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("destroy then poll is 404", func(t *testing.T) {
		resp := s.do(t, http.MethodDelete, "/api/sessions/"+code, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp = s.do(t, http.MethodGet, "/api/sessions/"+code, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func dialWS(t *testing.T, s *testServer, code, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") +
		fmt.Sprintf("/ws/session?code=%s&user_id=%s", code, userID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event hub.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	sess := createSession(t, s)
	code := sess.Code

	conn := dialWS(t, s, code, participantID)

	// First frame is the synthetic connection acknowledgment without a
	// snapshot.
	ack := readEvent(t, conn)
	assert.Equal(t, hub.EventSessionUpdated, ack.Type)
	assert.Equal(t, hub.UpdateConnected, ack.UpdateType)
	assert.Nil(t, ack.Session)

	// A mutation through the HTTP API arrives as a push event with the
	// fresh snapshot.
	resp := s.do(t, http.MethodPut, fmt.Sprintf("/api/sessions/%s/platforms?user_id=%s", code, adminID),
		session.SetPlatformsRequest{Platforms: []string{"netflix"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	event := readEvent(t, conn)
	assert.Equal(t, hub.EventSessionUpdated, event.Type)
	assert.Equal(t, hub.UpdatePlatformsSelected, event.UpdateType)
	require.NotNil(t, event.Session)
	assert.Equal(t, []string{"netflix"}, event.Session.Platforms)

	// Stats endpoint counts this subscriber.
	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s/stats", code), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Subscribers int `json:"subscribers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Subscribers)
}

func TestWebSocketSessionClearedOnDestroy(t *testing.T) {
	s := newTestServer(t)
	sess := createSession(t, s)
	code := sess.Code

	conn := dialWS(t, s, code, participantID)
	readEvent(t, conn) // connection ack

	resp := s.do(t, http.MethodDelete, "/api/sessions/"+code, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	event := readEvent(t, conn)
	assert.Equal(t, hub.EventSessionCleared, event.Type)
	assert.Equal(t, hub.UpdateSessionFinished, event.UpdateType)

	// The server closes the stream after the terminal event.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketRequiresSessionCode(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.Client().Get(s.URL + "/ws/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
