package client

import (
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/step"
)

// Reconciler combines the latest session snapshot, the device's role, and
// the locally persisted displayed step into the step to render. The
// persisted step is corrected, never silently trusted.
type Reconciler struct {
	store StepStore
}

// NewReconciler creates a reconciler over the given step store.
func NewReconciler(store StepStore) *Reconciler {
	return &Reconciler{store: store}
}

// Current recomputes the step for a session snapshot. On first load with no
// persisted step it computes from scratch; afterwards the persisted step is
// validated against the snapshot. The one exception to trusting the latest
// computation: once the device reached waiting-for-results, a snapshot that
// would compute an earlier step is suppressed, because completion events
// race general session updates.
func (r *Reconciler) Current(code string, sess *models.Session, role models.Role, userID string) step.Step {
	persisted, ok := r.store.Get(code, userID)

	var next step.Step
	if !ok {
		next = step.DetermineStep(sess, role, userID)
	} else {
		next = step.ValidateStep(persisted, sess, role, userID)
		if step.Terminal(persisted) && !step.Terminal(next) {
			next = persisted
		}
		if persisted == step.StepResults && next == step.StepWaitingForResults {
			next = persisted
		}
	}

	if !ok || next != persisted {
		if err := r.store.Set(code, userID, next); err != nil {
			log.Warn().Err(err).Str("session_code", code).Msg("failed to persist displayed step")
		}
	}
	return next
}

// Reset forgets the persisted step for a device, used at logout or when
// the session no longer exists.
func (r *Reconciler) Reset(code, userID string) {
	if err := r.store.Clear(code, userID); err != nil {
		log.Warn().Err(err).Str("session_code", code).Msg("failed to clear displayed step")
	}
}
