package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/step"
)

const (
	testAdminID       = "a1b2c3d4-0000-0000-0000-000000000001"
	testParticipantID = "abcdef12-0000-0000-0000-000000000002"
)

func participantSession(status models.SessionStatus, username string) *models.Session {
	return &models.Session{
		Code:         "KINO42",
		AdminUserID:  testAdminID,
		Status:       status,
		Platforms:    []string{"netflix"},
		Mode:         models.ModeGroup,
		AdminProfile: &models.ProfileCard{Username: "movie_marta"},
		Profiles: []models.Profile{
			{UserID: testAdminID, IsAdmin: true, Username: "movie_marta"},
			{UserID: testParticipantID, Username: username},
		},
	}
}

func TestReconciler_FirstLoadComputesAndPersists(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	sess := participantSession(models.StatusRecruiting, models.PlaceholderUsername(testParticipantID))
	got := r.Current("KINO42", sess, models.RoleParticipant, testParticipantID)
	assert.Equal(t, step.StepParticipantProfile, got)

	persisted, ok := store.Get("KINO42", testParticipantID)
	require.True(t, ok)
	assert.Equal(t, step.StepParticipantProfile, persisted)
}

func TestReconciler_AdvancesWithSnapshots(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	sess := participantSession(models.StatusRecruiting, models.PlaceholderUsername(testParticipantID))
	assert.Equal(t, step.StepParticipantProfile, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))

	sess = participantSession(models.StatusCollectingProfiles, "film_fan")
	assert.Equal(t, step.StepWaitingRoom, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))

	sess = participantSession(models.StatusQuizActive, "film_fan")
	assert.Equal(t, step.StepQuiz, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))
}

func TestReconciler_StaleSnapshotCannotLeaveQuiz(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	sess := participantSession(models.StatusQuizActive, "film_fan")
	require.Equal(t, step.StepQuiz, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))

	// An out-of-order snapshot still on ready_for_quiz arrives mid-quiz.
	stale := participantSession(models.StatusReadyForQuiz, "film_fan")
	assert.Equal(t, step.StepQuiz, r.Current("KINO42", stale, models.RoleParticipant, testParticipantID))
}

func TestReconciler_TerminalLatch(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	// The device reached waiting-for-results via its own completion event.
	done := participantSession(models.StatusQuizActive, "film_fan")
	done.Profiles[1].QuizAnswers = &models.QuizAnswerSet{CompletedAt: time.Now()}
	require.Equal(t, step.StepWaitingForResults, r.Current("KINO42", done, models.RoleParticipant, testParticipantID))

	// A racing general update whose snapshot predates the completion must
	// not pull the device back into the quiz.
	stale := participantSession(models.StatusQuizActive, "film_fan")
	assert.Equal(t, step.StepWaitingForResults, r.Current("KINO42", stale, models.RoleParticipant, testParticipantID))
}

func TestReconciler_ResultsAreNotDowngraded(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	final := participantSession(models.StatusResults, "film_fan")
	final.FinalVerdict = true
	require.Equal(t, step.StepResults, r.Current("KINO42", final, models.RoleParticipant, testParticipantID))

	// A snapshot missing the final-verdict flag computes waiting-for-results;
	// the device stays on the results screen.
	stale := participantSession(models.StatusResults, "film_fan")
	assert.Equal(t, step.StepResults, r.Current("KINO42", stale, models.RoleParticipant, testParticipantID))
}

func TestReconciler_ResetForgetsTheStep(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	sess := participantSession(models.StatusQuizActive, "film_fan")
	require.Equal(t, step.StepQuiz, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))

	r.Reset("KINO42", testParticipantID)
	_, ok := store.Get("KINO42", testParticipantID)
	assert.False(t, ok)

	// After reset a fresh computation runs, with no quiz gate to honor.
	early := participantSession(models.StatusCollectingProfiles, "film_fan")
	assert.Equal(t, step.StepWaitingRoom, r.Current("KINO42", early, models.RoleParticipant, testParticipantID))
}

func TestReconciler_StepsAreScopedPerUser(t *testing.T) {
	store := NewMemoryStepStore()
	r := NewReconciler(store)

	sess := participantSession(models.StatusQuizActive, "film_fan")
	sess.Profiles[1].QuizAnswers = &models.QuizAnswerSet{CompletedAt: time.Now()}

	assert.Equal(t, step.StepWaitingForResults, r.Current("KINO42", sess, models.RoleParticipant, testParticipantID))
	assert.Equal(t, step.StepQuiz, r.Current("KINO42", sess, models.RoleAdmin, testAdminID))
}

func TestFileStepStore_PersistsAcrossReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.json")

	store, err := NewFileStepStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("KINO42", testParticipantID, step.StepQuiz))

	reloaded, err := NewFileStepStore(path)
	require.NoError(t, err)
	got, ok := reloaded.Get("KINO42", testParticipantID)
	require.True(t, ok)
	assert.Equal(t, step.StepQuiz, got)

	require.NoError(t, reloaded.Clear("KINO42", testParticipantID))
	again, err := NewFileStepStore(path)
	require.NoError(t, err)
	_, ok = again.Get("KINO42", testParticipantID)
	assert.False(t, ok)
}

func TestFileStepStore_MissingFileStartsEmpty(t *testing.T) {
	store, err := NewFileStepStore(filepath.Join(t.TempDir(), "missing", "steps.json"))
	require.NoError(t, err)
	_, ok := store.Get("KINO42", testParticipantID)
	assert.False(t, ok)
}
