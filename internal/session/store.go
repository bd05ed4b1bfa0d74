package session

import (
	"context"
	"errors"
	"time"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session exists for a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose code is taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrProfileNotFound is returned when a user has no profile in a session.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrQuizAlreadyRecorded is returned on a second answer submission;
	// answer sets are write-once.
	ErrQuizAlreadyRecorded = errors.New("quiz answers already recorded")
)

// SessionPatch carries partial session updates. Nil fields are left
// untouched; each field path has a single writer so no merge logic is
// needed beyond this.
type SessionPatch struct {
	Platforms     *[]string
	Mode          *models.ViewingMode
	AdminProfile  *models.ProfileCard
	GroupAnalysis *models.GroupAnalysis
	MovieBatches  *[]models.MovieBatch
	FinalVerdict  *bool
	ExpiresAt     *time.Time
}

// ProfileFields carries the mutable fields of a profile.
type ProfileFields struct {
	Username      string
	DisplayName   string
	AvatarURL     string
	LetterboxdURL string
}

// Store is the durable source of truth for sessions and profiles. Every
// call is atomic per session row. Implementations hand out deep copies;
// callers never share memory with the store.
type Store interface {
	CreateSession(ctx context.Context, sess *models.Session) (*models.Session, error)
	GetSession(ctx context.Context, code string) (*models.Session, error)
	UpdateSession(ctx context.Context, code string, patch SessionPatch) (*models.Session, error)

	// AdvanceStatus moves a session's status forward. The transition is
	// idempotent and forward-only: a request to move to the current or an
	// earlier status is a no-op returning the current row.
	AdvanceStatus(ctx context.Context, code string, status models.SessionStatus) (*models.Session, error)

	AddOrUpdateProfile(ctx context.Context, code, userID string, isAdmin bool, fields ProfileFields) (*models.Session, error)

	// RecordQuizAnswers stores a participant's answer set exactly once.
	RecordQuizAnswers(ctx context.Context, code, userID string, answers models.QuizAnswerSet) (*models.Session, error)

	DeleteSession(ctx context.Context, code string) error

	// ListExpiredCodes returns codes of sessions past their expiry.
	ListExpiredCodes(ctx context.Context, now time.Time) ([]string, error)
}
