// Package step holds the pure session state machine: given a session
// snapshot and a caller's role it decides which step of the flow a device
// should render. It performs no I/O and never returns an error; missing or
// partial session data degrades to the earliest step whose prerequisites
// are unmet.
package step

import (
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// Step is the screen/phase a device should currently render.
type Step string

const (
	StepPlatforms          Step = "platforms"
	StepMode               Step = "mode"
	StepAdminProfile       Step = "admin_profile"
	StepQRCode             Step = "qr_code"
	StepParticipantProfile Step = "participant_profile"
	StepWaitingRoom        Step = "waiting_room"
	StepQuiz               Step = "quiz"
	StepWaitingForResults  Step = "waiting_for_results"
	StepResults            Step = "results"
)

// DetermineStep computes the step for a role and user from a session
// snapshot. The quiz-completion check runs before any role-specific logic
// and is irreversible per user: a user who has finished never returns to an
// earlier step even while the session is still collecting other answers.
func DetermineStep(sess *models.Session, role models.Role, userID string) Step {
	if sess == nil {
		if role == models.RoleAdmin {
			return StepPlatforms
		}
		return StepParticipantProfile
	}

	if done, st := completionStep(sess, userID); done {
		return st
	}

	if role == models.RoleAdmin {
		return adminStep(sess)
	}
	return participantStep(sess, userID)
}

// ValidateStep corrects a step the client already believes it is on against
// the current snapshot. It is idempotent, and it treats an observed quiz
// step as a one-way gate: a stale snapshot arriving out of order must not
// bounce a mid-quiz client back to the waiting room. The only transition
// past the gate is the quiz-completion short-circuit.
func ValidateStep(candidate Step, sess *models.Session, role models.Role, userID string) Step {
	target := DetermineStep(sess, role, userID)
	if target == StepWaitingForResults || target == StepResults {
		return target
	}
	if candidate == StepQuiz {
		return StepQuiz
	}
	return target
}

// completionStep evaluates the irreversible per-user completion check.
func completionStep(sess *models.Session, userID string) (bool, Step) {
	profile := sess.ProfileFor(userID)
	if profile.QuizDone() || sess.Status == models.StatusResults {
		if sess.FinalVerdict {
			return true, StepResults
		}
		return true, StepWaitingForResults
	}
	return false, ""
}

// adminStep walks the admin prerequisite chain. A missing prerequisite
// always wins over a later status value: never show a later screen than the
// data supports.
func adminStep(sess *models.Session) Step {
	if !sess.HasPlatforms() {
		return StepPlatforms
	}
	if !sess.HasMode() {
		return StepMode
	}
	if !sess.HasAdminProfile() {
		return StepAdminProfile
	}
	switch sess.Status {
	case models.StatusRecruiting:
		return StepQRCode
	case models.StatusCollectingProfiles, models.StatusReadyForQuiz:
		return StepWaitingRoom
	case models.StatusQuizActive:
		return StepQuiz
	default:
		return StepQRCode
	}
}

// participantStep walks the participant chain, gated on the shared
// profile-completion predicate.
func participantStep(sess *models.Session, userID string) Step {
	profile := sess.ProfileFor(userID)
	if !profile.Completed() {
		return StepParticipantProfile
	}
	if sess.Status == models.StatusQuizActive {
		return StepQuiz
	}
	return StepWaitingRoom
}

// Terminal reports whether a step is past the quiz: once a device has shown
// one of these the reconciler never moves it to an earlier step.
func Terminal(s Step) bool {
	return s == StepWaitingForResults || s == StepResults
}
