package models

import (
	"strings"
	"time"
)

// placeholderPrefix marks a username that was auto-assigned at join time
// and has not yet been replaced by the participant's real handle.
const placeholderPrefix = "temp_"

// PlaceholderUsername derives the deterministic temporary handle for a user.
// Both the server and the client compute profile completion from this same
// function, so the definition must never fork.
func PlaceholderUsername(userID string) string {
	compact := strings.ReplaceAll(userID, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return placeholderPrefix + compact
}

// Profile is one participant's (or the admin's) identity within a session.
type Profile struct {
	SessionCode   string         `json:"session_code"`
	UserID        string         `json:"user_id"`
	IsAdmin       bool           `json:"is_admin"`
	Username      string         `json:"username"`
	DisplayName   string         `json:"display_name,omitempty"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	LetterboxdURL string         `json:"letterboxd_url,omitempty"`
	QuizAnswers   *QuizAnswerSet `json:"quiz_answers,omitempty"`
	JoinedAt      time.Time      `json:"joined_at"`
}

// Completed reports whether the participant has supplied a real profile.
// Completion is defined purely as the username differing from the
// placeholder derived from the same user id.
func (p *Profile) Completed() bool {
	if p == nil {
		return false
	}
	return p.Username != "" && p.Username != PlaceholderUsername(p.UserID)
}

// QuizDone reports whether this profile has a recorded quiz answer set.
// Once true it stays true; answer sets are immutable after creation.
func (p *Profile) QuizDone() bool {
	return p != nil && p.QuizAnswers != nil && !p.QuizAnswers.CompletedAt.IsZero()
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.QuizAnswers != nil {
		qa := *p.QuizAnswers
		qa.Answers = append([]QuizAnswer(nil), p.QuizAnswers.Answers...)
		out.QuizAnswers = &qa
	}
	return &out
}
