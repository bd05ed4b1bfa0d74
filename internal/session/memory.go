package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// MemoryStore is an in-memory Store used in tests and single-node dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) CreateSession(_ context.Context, sess *models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.Code]; ok {
		return nil, ErrSessionExists
	}
	now := time.Now().UTC()
	stored := sess.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = models.StatusRecruiting
	}
	m.sessions[sess.Code] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) GetSession(_ context.Context, code string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, code string, patch SessionPatch) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if patch.Platforms != nil {
		sess.Platforms = append([]string(nil), *patch.Platforms...)
	}
	if patch.Mode != nil {
		sess.Mode = *patch.Mode
	}
	if patch.AdminProfile != nil {
		card := *patch.AdminProfile
		sess.AdminProfile = &card
	}
	if patch.GroupAnalysis != nil {
		ga := *patch.GroupAnalysis
		sess.GroupAnalysis = &ga
	}
	if patch.MovieBatches != nil {
		sess.MovieBatches = append([]models.MovieBatch(nil), *patch.MovieBatches...)
	}
	if patch.FinalVerdict != nil {
		sess.FinalVerdict = *patch.FinalVerdict
	}
	if patch.ExpiresAt != nil {
		sess.ExpiresAt = *patch.ExpiresAt
	}
	sess.UpdatedAt = time.Now().UTC()
	return sess.Clone(), nil
}

func (m *MemoryStore) AdvanceStatus(_ context.Context, code string, status models.SessionStatus) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Forward-only: the second of two concurrent advances no-ops.
	if status.Rank() > sess.Status.Rank() {
		sess.Status = status
		sess.UpdatedAt = time.Now().UTC()
	}
	return sess.Clone(), nil
}

func (m *MemoryStore) AddOrUpdateProfile(_ context.Context, code, userID string, isAdmin bool, fields ProfileFields) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := time.Now().UTC()
	if existing := sess.ProfileFor(userID); existing != nil {
		applyProfileFields(existing, fields)
	} else {
		profile := models.Profile{
			SessionCode: code,
			UserID:      userID,
			IsAdmin:     isAdmin,
			JoinedAt:    now,
		}
		applyProfileFields(&profile, fields)
		sess.Profiles = append(sess.Profiles, profile)
	}
	sess.UpdatedAt = now
	return sess.Clone(), nil
}

func (m *MemoryStore) RecordQuizAnswers(_ context.Context, code, userID string, answers models.QuizAnswerSet) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	profile := sess.ProfileFor(userID)
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.QuizDone() {
		return nil, ErrQuizAlreadyRecorded
	}
	stored := answers
	stored.Answers = append([]models.QuizAnswer(nil), answers.Answers...)
	if stored.CompletedAt.IsZero() {
		stored.CompletedAt = time.Now().UTC()
	}
	profile.QuizAnswers = &stored
	sess.UpdatedAt = time.Now().UTC()
	return sess.Clone(), nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[code]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, code)
	return nil
}

func (m *MemoryStore) ListExpiredCodes(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var codes []string
	for code, sess := range m.sessions {
		if sess.Expired(now) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func applyProfileFields(profile *models.Profile, fields ProfileFields) {
	if fields.Username != "" {
		profile.Username = fields.Username
	}
	if fields.DisplayName != "" {
		profile.DisplayName = fields.DisplayName
	}
	if fields.AvatarURL != "" {
		profile.AvatarURL = fields.AvatarURL
	}
	if fields.LetterboxdURL != "" {
		profile.LetterboxdURL = fields.LetterboxdURL
	}
}
