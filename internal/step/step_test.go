package step_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/step"
)

const (
	adminID       = "a1b2c3d4-0000-0000-0000-000000000001"
	participantID = "abcdef12-0000-0000-0000-000000000002"
)

func baseSession(status models.SessionStatus) *models.Session {
	return &models.Session{
		Code:        "KINO42",
		AdminUserID: adminID,
		Status:      status,
		Profiles: []models.Profile{
			{
				SessionCode: "KINO42",
				UserID:      adminID,
				IsAdmin:     true,
				Username:    models.PlaceholderUsername(adminID),
			},
		},
	}
}

func readySession(status models.SessionStatus) *models.Session {
	sess := baseSession(status)
	sess.Platforms = []string{"netflix", "hbo"}
	sess.Mode = models.ModeGroup
	sess.AdminProfile = &models.ProfileCard{Username: "movie_marta"}
	sess.Profiles[0].Username = "movie_marta"
	return sess
}

func addParticipant(sess *models.Session, userID, username string) {
	sess.Profiles = append(sess.Profiles, models.Profile{
		SessionCode: sess.Code,
		UserID:      userID,
		Username:    username,
	})
}

func TestDetermineStep_AdminPrerequisiteChain(t *testing.T) {
	tests := []struct {
		name string
		prep func(*models.Session)
		want step.Step
	}{
		{
			name: "no platforms selected",
			prep: func(s *models.Session) { s.Platforms = nil },
			want: step.StepPlatforms,
		},
		{
			name: "platforms but no mode",
			prep: func(s *models.Session) {
				s.Platforms = []string{"netflix"}
				s.Mode = ""
			},
			want: step.StepMode,
		},
		{
			name: "platforms and mode but no admin profile",
			prep: func(s *models.Session) {
				s.Platforms = []string{"netflix"}
				s.Mode = models.ModeSolo
				s.AdminProfile = nil
			},
			want: step.StepAdminProfile,
		},
		{
			name: "missing prerequisite wins over later status",
			prep: func(s *models.Session) {
				s.Platforms = nil
				s.Status = models.StatusQuizActive
			},
			want: step.StepPlatforms,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := baseSession(models.StatusRecruiting)
			tt.prep(sess)
			assert.Equal(t, tt.want, step.DetermineStep(sess, models.RoleAdmin, adminID))
		})
	}
}

func TestDetermineStep_AdminStatusAdmission(t *testing.T) {
	tests := []struct {
		status models.SessionStatus
		want   step.Step
	}{
		{models.StatusRecruiting, step.StepQRCode},
		{models.StatusCollectingProfiles, step.StepWaitingRoom},
		{models.StatusReadyForQuiz, step.StepWaitingRoom},
		{models.StatusQuizActive, step.StepQuiz},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			sess := readySession(tt.status)
			assert.Equal(t, tt.want, step.DetermineStep(sess, models.RoleAdmin, adminID))
		})
	}
}

func TestDetermineStep_ParticipantChain(t *testing.T) {
	t.Run("placeholder username means profile step", func(t *testing.T) {
		sess := readySession(models.StatusCollectingProfiles)
		addParticipant(sess, participantID, models.PlaceholderUsername(participantID))
		assert.Equal(t, step.StepParticipantProfile, step.DetermineStep(sess, models.RoleParticipant, participantID))
	})

	t.Run("real username means waiting room", func(t *testing.T) {
		sess := readySession(models.StatusCollectingProfiles)
		addParticipant(sess, participantID, "film_fan")
		assert.Equal(t, step.StepWaitingRoom, step.DetermineStep(sess, models.RoleParticipant, participantID))
	})

	t.Run("quiz active admits completed participant", func(t *testing.T) {
		sess := readySession(models.StatusQuizActive)
		addParticipant(sess, participantID, "film_fan")
		assert.Equal(t, step.StepQuiz, step.DetermineStep(sess, models.RoleParticipant, participantID))
	})

	t.Run("unknown participant starts at profile step", func(t *testing.T) {
		sess := readySession(models.StatusRecruiting)
		assert.Equal(t, step.StepParticipantProfile, step.DetermineStep(sess, models.RoleParticipant, "nobody"))
	})
}

func TestDetermineStep_CompletionShortCircuit(t *testing.T) {
	t.Run("finished quiz beats any role logic", func(t *testing.T) {
		sess := readySession(models.StatusQuizActive)
		addParticipant(sess, participantID, "film_fan")
		sess.Profiles[1].QuizAnswers = &models.QuizAnswerSet{CompletedAt: time.Now()}

		assert.Equal(t, step.StepWaitingForResults, step.DetermineStep(sess, models.RoleParticipant, participantID))
		// Admin has not submitted yet and still sees the quiz.
		assert.Equal(t, step.StepQuiz, step.DetermineStep(sess, models.RoleAdmin, adminID))
	})

	t.Run("results status moves everyone to waiting", func(t *testing.T) {
		sess := readySession(models.StatusResults)
		addParticipant(sess, participantID, "film_fan")
		assert.Equal(t, step.StepWaitingForResults, step.DetermineStep(sess, models.RoleParticipant, participantID))
		assert.Equal(t, step.StepWaitingForResults, step.DetermineStep(sess, models.RoleAdmin, adminID))
	})

	t.Run("final verdict unlocks results", func(t *testing.T) {
		sess := readySession(models.StatusResults)
		sess.FinalVerdict = true
		assert.Equal(t, step.StepResults, step.DetermineStep(sess, models.RoleAdmin, adminID))
	})
}

func TestDetermineStep_NilSessionDegradesToEarliestStep(t *testing.T) {
	assert.Equal(t, step.StepPlatforms, step.DetermineStep(nil, models.RoleAdmin, adminID))
	assert.Equal(t, step.StepParticipantProfile, step.DetermineStep(nil, models.RoleParticipant, participantID))
}

func TestDetermineStep_Pure(t *testing.T) {
	sess := readySession(models.StatusCollectingProfiles)
	addParticipant(sess, participantID, "film_fan")
	first := step.DetermineStep(sess, models.RoleParticipant, participantID)
	second := step.DetermineStep(sess, models.RoleParticipant, participantID)
	assert.Equal(t, first, second)
}

func TestValidateStep_Idempotent(t *testing.T) {
	sessions := []*models.Session{
		nil,
		baseSession(models.StatusRecruiting),
		readySession(models.StatusCollectingProfiles),
		readySession(models.StatusQuizActive),
		readySession(models.StatusResults),
	}
	candidates := []step.Step{
		step.StepPlatforms, step.StepQRCode, step.StepWaitingRoom,
		step.StepQuiz, step.StepWaitingForResults, step.StepResults,
	}

	for _, sess := range sessions {
		for _, candidate := range candidates {
			once := step.ValidateStep(candidate, sess, models.RoleAdmin, adminID)
			twice := step.ValidateStep(once, sess, models.RoleAdmin, adminID)
			assert.Equal(t, once, twice, "candidate %s", candidate)
		}
	}
}

func TestValidateStep_QuizIsOneWayGate(t *testing.T) {
	// A stale snapshot still in the waiting-room phase must not bounce a
	// mid-quiz device backwards.
	stale := readySession(models.StatusReadyForQuiz)
	addParticipant(stale, participantID, "film_fan")

	assert.Equal(t, step.StepQuiz, step.ValidateStep(step.StepQuiz, stale, models.RoleParticipant, participantID))
	assert.Equal(t, step.StepQuiz, step.ValidateStep(step.StepQuiz, stale, models.RoleAdmin, adminID))
}

func TestValidateStep_CompletionMonotonicity(t *testing.T) {
	// Once the user's answer set exists, no snapshot ordering produces a
	// pre-quiz step again.
	sess := readySession(models.StatusQuizActive)
	addParticipant(sess, participantID, "film_fan")
	sess.Profiles[1].QuizAnswers = &models.QuizAnswerSet{CompletedAt: time.Now()}

	for _, candidate := range []step.Step{step.StepWaitingRoom, step.StepQuiz, step.StepParticipantProfile} {
		got := step.ValidateStep(candidate, sess, models.RoleParticipant, participantID)
		assert.Equal(t, step.StepWaitingForResults, got, "candidate %s", candidate)
	}
}

func TestValidateStep_CorrectsStaleSteps(t *testing.T) {
	sess := readySession(models.StatusCollectingProfiles)
	addParticipant(sess, participantID, "film_fan")

	// Forward correction: client still on the profile step after completing.
	got := step.ValidateStep(step.StepParticipantProfile, sess, models.RoleParticipant, participantID)
	assert.Equal(t, step.StepWaitingRoom, got)

	// No-op when the candidate already matches.
	got = step.ValidateStep(step.StepWaitingRoom, sess, models.RoleParticipant, participantID)
	assert.Equal(t, step.StepWaitingRoom, got)
}

func TestPlaceholderPredicateAgreement(t *testing.T) {
	// The server-side determination and the client-side reconciliation both
	// go through Profile.Completed; the predicate must flip exactly when
	// the username differs from the placeholder for the same user id.
	placeholder := models.PlaceholderUsername(participantID)
	require.Equal(t, "temp_abcdef12", placeholder)

	incomplete := &models.Profile{UserID: participantID, Username: placeholder}
	complete := &models.Profile{UserID: participantID, Username: "film_fan"}
	assert.False(t, incomplete.Completed())
	assert.True(t, complete.Completed())

	// A placeholder for someone else's id counts as a real username.
	other := &models.Profile{UserID: participantID, Username: models.PlaceholderUsername(adminID)}
	assert.True(t, other.Completed())
}

// TestScenario_FullFlow walks the whole activity end to end.
func TestScenario_FullFlow(t *testing.T) {
	sess := baseSession(models.StatusRecruiting)
	require.Equal(t, step.StepPlatforms, step.DetermineStep(sess, models.RoleAdmin, adminID))

	// Admin picks platforms, mode and profile; still recruiting.
	sess.Platforms = []string{"netflix"}
	require.Equal(t, step.StepMode, step.DetermineStep(sess, models.RoleAdmin, adminID))
	sess.Mode = models.ModeGroup
	require.Equal(t, step.StepAdminProfile, step.DetermineStep(sess, models.RoleAdmin, adminID))
	sess.AdminProfile = &models.ProfileCard{Username: "movie_marta"}
	sess.Profiles[0].Username = "movie_marta"
	require.Equal(t, step.StepQRCode, step.DetermineStep(sess, models.RoleAdmin, adminID))

	// Participant joins with the placeholder handle.
	addParticipant(sess, participantID, models.PlaceholderUsername(participantID))
	require.Equal(t, step.StepParticipantProfile, step.DetermineStep(sess, models.RoleParticipant, participantID))

	// Participant sets a real username.
	sess.Profiles[1].Username = "film_fan"
	require.Equal(t, step.StepWaitingRoom, step.DetermineStep(sess, models.RoleParticipant, participantID))

	// Admin closes registration, then starts the quiz.
	sess.Status = models.StatusCollectingProfiles
	require.Equal(t, step.StepWaitingRoom, step.DetermineStep(sess, models.RoleAdmin, adminID))
	sess.Status = models.StatusQuizActive
	require.Equal(t, step.StepQuiz, step.DetermineStep(sess, models.RoleAdmin, adminID))
	require.Equal(t, step.StepQuiz, step.DetermineStep(sess, models.RoleParticipant, participantID))

	// Participant finishes first: they wait while the admin still plays.
	sess.Profiles[1].QuizAnswers = &models.QuizAnswerSet{CompletedAt: time.Now()}
	require.Equal(t, step.StepWaitingForResults, step.DetermineStep(sess, models.RoleParticipant, participantID))
	require.Equal(t, step.StepQuiz, step.DetermineStep(sess, models.RoleAdmin, adminID))
}
