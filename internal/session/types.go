package session

import "github.com/MarcinMove37ai/vodmatch-sub001/internal/models"

// CreateSessionRequest starts a new session for an admin.
type CreateSessionRequest struct {
	AdminUserID string `json:"admin_user_id"`
}

// JoinSessionRequest adds a participant to a recruiting session.
type JoinSessionRequest struct {
	UserID string `json:"user_id"`
}

// SetPlatformsRequest records the admin's platform selection.
type SetPlatformsRequest struct {
	Platforms []string `json:"platforms"`
}

// SetModeRequest records the viewing-mode selection.
type SetModeRequest struct {
	Mode models.ViewingMode `json:"mode"`
}

// SaveProfileRequest replaces a profile's placeholder fields with real ones.
type SaveProfileRequest struct {
	Username      string `json:"username"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	LetterboxdURL string `json:"letterboxd_url,omitempty"`
}

// SubmitAnswersRequest records a participant's completed quiz.
type SubmitAnswersRequest struct {
	Answers []models.QuizAnswer `json:"answers"`
}
