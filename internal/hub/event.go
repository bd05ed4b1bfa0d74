package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// EventType names the kinds of notifications delivered to subscribers.
type EventType string

const (
	// EventSessionUpdated carries a full session snapshot plus an update tag.
	EventSessionUpdated EventType = "session_updated"
	// EventHeartbeat carries no payload; it only proves the stream is alive.
	EventHeartbeat EventType = "heartbeat"
	// EventSessionCleared is terminal: the session was deleted or replaced.
	EventSessionCleared EventType = "session_cleared"
)

// UpdateType tags what changed inside a session_updated event.
type UpdateType string

const (
	UpdateConnected           UpdateType = "connected"
	UpdatePlatformsSelected   UpdateType = "platforms_selected"
	UpdateModeSelected        UpdateType = "mode_selected"
	UpdateParticipantJoined   UpdateType = "participant_joined"
	UpdateProfileAdded        UpdateType = "profile_added"
	UpdateStatusChanged       UpdateType = "status_changed"
	UpdateQuizStarted         UpdateType = "quiz_started"
	UpdateAnswersRecorded     UpdateType = "answers_recorded"
	UpdateFinalVerdictReached UpdateType = "final_verdict_reached"
	UpdateSessionFinished     UpdateType = "session_finished"
)

// Event is one session-scoped notification. Events are ephemeral hints to
// replace local state with the carried snapshot; durable truth lives in the
// session store, so a dropped event is always recoverable by the next poll.
type Event struct {
	ID          string          `json:"id"`
	SessionCode string          `json:"session_id"`
	Type        EventType       `json:"type"`
	UpdateType  UpdateType      `json:"update_type,omitempty"`
	Session     *models.Session `json:"session,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewSessionEvent builds a session_updated event carrying a full snapshot.
func NewSessionEvent(code string, update UpdateType, sess *models.Session) Event {
	return Event{
		ID:          uuid.New().String(),
		SessionCode: code,
		Type:        EventSessionUpdated,
		UpdateType:  update,
		Session:     sess,
		Timestamp:   time.Now().UTC(),
	}
}

// NewClearedEvent builds the terminal notification for a destroyed session,
// so clients can distinguish "this session ended" from a network blip.
func NewClearedEvent(code string, update UpdateType) Event {
	return Event{
		ID:          uuid.New().String(),
		SessionCode: code,
		Type:        EventSessionCleared,
		UpdateType:  update,
		Timestamp:   time.Now().UTC(),
	}
}

// newHeartbeat builds a periodic keep-alive event.
func newHeartbeat(code string, now time.Time) Event {
	return Event{
		ID:          uuid.New().String(),
		SessionCode: code,
		Type:        EventHeartbeat,
		Timestamp:   now.UTC(),
	}
}
