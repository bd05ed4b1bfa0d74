package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/hub"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

var (
	// ErrNotAdmin is returned when a participant calls an admin-only operation.
	ErrNotAdmin = errors.New("caller is not the session admin")
	// ErrRegistrationClosed is returned when joining a session that is no
	// longer recruiting.
	ErrRegistrationClosed = errors.New("session registration is closed")
	// ErrInvalidRequest is returned for requests failing validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// EventSink is where mutations publish their notifications. In single-node
// mode the hub itself is the sink; with the NATS bridge enabled the sink
// publishes to a subject consumed by every instance's hub.
type EventSink interface {
	Publish(code string, event hub.Event)
	Teardown(code string)
}

// Config holds session lifecycle knobs.
type Config struct {
	TTL        time.Duration
	CodeLength int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:        6 * time.Hour,
		CodeLength: 6,
	}
}

// App performs the domain mutations: each one validates, writes through the
// store, then publishes a typed event carrying the fresh snapshot. The
// store is the only source of truth; events are hints to replace state.
type App struct {
	store  Store
	events EventSink
	config Config
}

// NewApp creates the session application layer.
func NewApp(store Store, events EventSink, config Config) *App {
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.CodeLength <= 0 {
		config.CodeLength = DefaultConfig().CodeLength
	}
	return &App{store: store, events: events, config: config}
}

// GetSession returns the current snapshot for a code.
func (a *App) GetSession(ctx context.Context, code string) (*models.Session, error) {
	return a.store.GetSession(ctx, code)
}

// CreateSession starts a new session and seeds the admin's placeholder
// profile.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.AdminUserID == "" {
		return nil, fmt.Errorf("%w: admin_user_id is required", ErrInvalidRequest)
	}

	var sess *models.Session
	for attempt := 0; attempt < 5; attempt++ {
		code, err := GenerateCode(a.config.CodeLength)
		if err != nil {
			return nil, err
		}
		sess, err = a.store.CreateSession(ctx, &models.Session{
			Code:        code,
			AdminUserID: req.AdminUserID,
			Status:      models.StatusRecruiting,
			ExpiresAt:   time.Now().UTC().Add(a.config.TTL),
		})
		if errors.Is(err, ErrSessionExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		break
	}
	if sess == nil {
		return nil, fmt.Errorf("create session: could not allocate a unique code")
	}

	sess, err := a.store.AddOrUpdateProfile(ctx, sess.Code, req.AdminUserID, true, ProfileFields{
		Username: models.PlaceholderUsername(req.AdminUserID),
	})
	if err != nil {
		return nil, fmt.Errorf("seed admin profile: %w", err)
	}

	log.Info().Str("session_code", sess.Code).Str("admin_user_id", req.AdminUserID).Msg("session created")
	return sess, nil
}

// JoinSession adds a participant to a recruiting session, assigning the
// deterministic placeholder username until they supply a real profile.
func (a *App) JoinSession(ctx context.Context, code string, req JoinSessionRequest) (*models.Session, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	sess, err := a.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	if existing := sess.ProfileFor(req.UserID); existing != nil {
		// Rejoining an existing profile is a no-op mutation.
		return sess, nil
	}
	if sess.Status != models.StatusRecruiting {
		return nil, ErrRegistrationClosed
	}

	sess, err = a.store.AddOrUpdateProfile(ctx, code, req.UserID, false, ProfileFields{
		Username: models.PlaceholderUsername(req.UserID),
	})
	if err != nil {
		return nil, fmt.Errorf("join session: %w", err)
	}

	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdateParticipantJoined, sess))
	return sess, nil
}

// SetPlatforms records the admin's platform selection.
func (a *App) SetPlatforms(ctx context.Context, code, callerID string, req SetPlatformsRequest) (*models.Session, error) {
	if len(req.Platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidRequest)
	}
	if err := a.requireAdmin(ctx, code, callerID); err != nil {
		return nil, err
	}
	sess, err := a.store.UpdateSession(ctx, code, SessionPatch{Platforms: &req.Platforms})
	if err != nil {
		return nil, fmt.Errorf("set platforms: %w", err)
	}
	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdatePlatformsSelected, sess))
	return sess, nil
}

// SetMode records the viewing-mode selection.
func (a *App) SetMode(ctx context.Context, code, callerID string, req SetModeRequest) (*models.Session, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown viewing mode %q", ErrInvalidRequest, req.Mode)
	}
	if err := a.requireAdmin(ctx, code, callerID); err != nil {
		return nil, err
	}
	sess, err := a.store.UpdateSession(ctx, code, SessionPatch{Mode: &req.Mode})
	if err != nil {
		return nil, fmt.Errorf("set mode: %w", err)
	}
	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdateModeSelected, sess))
	return sess, nil
}

// SaveProfile replaces a profile's placeholder fields. For the admin it
// also fills the session-level admin profile card, one of the prerequisite
// fields on the admin flow.
func (a *App) SaveProfile(ctx context.Context, code, userID string, req SaveProfileRequest) (*models.Session, error) {
	if req.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	sess, err := a.store.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	profile := sess.ProfileFor(userID)
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	sess, err = a.store.AddOrUpdateProfile(ctx, code, userID, profile.IsAdmin, ProfileFields{
		Username:      req.Username,
		DisplayName:   req.DisplayName,
		AvatarURL:     req.AvatarURL,
		LetterboxdURL: req.LetterboxdURL,
	})
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	if profile.IsAdmin {
		sess, err = a.store.UpdateSession(ctx, code, SessionPatch{
			AdminProfile: &models.ProfileCard{
				Username:    req.Username,
				DisplayName: req.DisplayName,
				AvatarURL:   req.AvatarURL,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("save admin profile card: %w", err)
		}
	}

	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdateProfileAdded, sess))

	// Once every collected profile is complete the session becomes ready.
	if sess.Status == models.StatusCollectingProfiles && allProfilesComplete(sess) {
		sess, err = a.advance(ctx, code, models.StatusReadyForQuiz, hub.UpdateStatusChanged)
		if err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// CloseRegistration stops recruiting and moves to profile collection.
func (a *App) CloseRegistration(ctx context.Context, code, callerID string) (*models.Session, error) {
	if err := a.requireAdmin(ctx, code, callerID); err != nil {
		return nil, err
	}
	return a.advance(ctx, code, models.StatusCollectingProfiles, hub.UpdateStatusChanged)
}

// StartQuiz begins the synchronized quiz for everyone.
func (a *App) StartQuiz(ctx context.Context, code, callerID string) (*models.Session, error) {
	if err := a.requireAdmin(ctx, code, callerID); err != nil {
		return nil, err
	}
	return a.advance(ctx, code, models.StatusQuizActive, hub.UpdateQuizStarted)
}

// SubmitAnswers records a participant's completed quiz. When the last
// participant finishes, the session advances to results.
func (a *App) SubmitAnswers(ctx context.Context, code, userID string, req SubmitAnswersRequest) (*models.Session, error) {
	if len(req.Answers) == 0 {
		return nil, fmt.Errorf("%w: answers are required", ErrInvalidRequest)
	}
	sess, err := a.store.RecordQuizAnswers(ctx, code, userID, models.QuizAnswerSet{
		Answers:     req.Answers,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdateAnswersRecorded, sess))

	if sess.Status == models.StatusQuizActive && allQuizzesDone(sess) {
		sess, err = a.advance(ctx, code, models.StatusResults, hub.UpdateStatusChanged)
		if err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// FinalizeResults attaches the aggregate artifacts and marks the final
// verdict reached.
func (a *App) FinalizeResults(ctx context.Context, code, callerID string, analysis *models.GroupAnalysis, batches []models.MovieBatch) (*models.Session, error) {
	if err := a.requireAdmin(ctx, code, callerID); err != nil {
		return nil, err
	}
	verdict := true
	patch := SessionPatch{FinalVerdict: &verdict}
	if analysis != nil {
		patch.GroupAnalysis = analysis
	}
	if batches != nil {
		patch.MovieBatches = &batches
	}
	sess, err := a.store.UpdateSession(ctx, code, patch)
	if err != nil {
		return nil, fmt.Errorf("finalize results: %w", err)
	}
	a.events.Publish(code, hub.NewSessionEvent(code, hub.UpdateFinalVerdictReached, sess))
	return sess, nil
}

// DestroySession deletes a session and force-closes its event streams. It
// is idempotent: destroying a session that is already gone only repeats the
// teardown signal.
func (a *App) DestroySession(ctx context.Context, code string) error {
	err := a.store.DeleteSession(ctx, code)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("destroy session: %w", err)
	}
	a.events.Teardown(code)
	log.Info().Str("session_code", code).Msg("session destroyed")
	return nil
}

func (a *App) advance(ctx context.Context, code string, status models.SessionStatus, update hub.UpdateType) (*models.Session, error) {
	sess, err := a.store.AdvanceStatus(ctx, code, status)
	if err != nil {
		return nil, fmt.Errorf("advance to %s: %w", status, err)
	}
	a.events.Publish(code, hub.NewSessionEvent(code, update, sess))
	return sess, nil
}

func (a *App) requireAdmin(ctx context.Context, code, callerID string) error {
	sess, err := a.store.GetSession(ctx, code)
	if err != nil {
		return err
	}
	if sess.AdminUserID != callerID {
		return ErrNotAdmin
	}
	return nil
}

func allProfilesComplete(sess *models.Session) bool {
	for i := range sess.Profiles {
		if !sess.Profiles[i].Completed() {
			return false
		}
	}
	return len(sess.Profiles) > 0
}

func allQuizzesDone(sess *models.Session) bool {
	for i := range sess.Profiles {
		if !sess.Profiles[i].QuizDone() {
			return false
		}
	}
	return len(sess.Profiles) > 0
}
