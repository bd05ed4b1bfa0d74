// Package cleanup destroys sessions past their expiry. Expiry is the only
// reset protocol: a reused group gets a new session code, never a recycled
// one.
package cleanup

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/session"
)

// Config holds sweep timing.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Destroyer is the single operation the worker needs from the session app.
type Destroyer interface {
	DestroySession(ctx context.Context, code string) error
}

// Worker periodically sweeps expired sessions and destroys them, which
// also tears down their event streams.
type Worker struct {
	store     session.Store
	destroyer Destroyer
	config    Config
	clock     clockwork.Clock
}

// NewWorker creates an expiry sweep worker.
func NewWorker(store session.Store, destroyer Destroyer, config Config, clock clockwork.Clock) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Worker{store: store, destroyer: destroyer, config: config, clock: clock}
}

// Run sweeps until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.config.Interval).Msg("session cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session cleanup worker shutting down")
			return
		case now := <-ticker.Chan():
			w.Sweep(ctx, now)
		}
	}
}

// Sweep destroys every expired session once. A failed destroy is logged
// and retried on the next sweep.
func (w *Worker) Sweep(ctx context.Context, now time.Time) {
	codes, err := w.store.ListExpiredCodes(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to list expired sessions")
		return
	}
	for _, code := range codes {
		if err := w.destroyer.DestroySession(ctx, code); err != nil {
			log.Error().Err(err).Str("session_code", code).Msg("failed to destroy expired session")
			continue
		}
		log.Info().Str("session_code", code).Msg("expired session destroyed")
	}
}
