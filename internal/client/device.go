package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
	"github.com/MarcinMove37ai/vodmatch-sub001/internal/step"
)

// ClientSession is the device-local identity: which session this device is
// in and as whom. It is created at login/join and destroyed at logout or
// when the server reports the session no longer exists.
type ClientSession struct {
	SessionCode string      `json:"session_code"`
	UserID      string      `json:"user_id"`
	Role        models.Role `json:"role"`
	LastSyncAt  time.Time   `json:"last_sync_at"`
}

// Device ties the synchronizer, the polling fallback and the reconciler
// together for one device. Push and polling may both be live briefly, but
// only one snapshot is authoritative at any instant.
type Device struct {
	// OnStep is invoked whenever the displayed step changes.
	OnStep func(st step.Step)

	sync       *Synchronizer
	poller     *Poller
	reconciler *Reconciler

	mu         sync.Mutex
	session    *ClientSession
	polled     *models.Session
	current    step.Step
	pollCancel context.CancelFunc
}

// NewDevice wires the three client components together.
func NewDevice(s *Synchronizer, p *Poller, r *Reconciler) *Device {
	d := &Device{sync: s, poller: p, reconciler: r}
	s.OnUpdate = func(*models.Session) { d.recompute() }
	s.OnCleared = func(code string) { d.sessionGone(code) }
	p.OnSnapshot = func(sess *models.Session) { d.applyPolled(sess) }
	p.OnGone = func(code string) { d.sessionGone(code) }
	return d
}

// Login binds the device to a session and starts push and polling.
func (d *Device) Login(ctx context.Context, code, userID string, role models.Role) {
	d.mu.Lock()
	if d.pollCancel != nil {
		d.pollCancel()
	}
	d.session = &ClientSession{SessionCode: code, UserID: userID, Role: role}
	d.polled = nil
	d.current = ""
	pollCtx, cancel := context.WithCancel(ctx)
	d.pollCancel = cancel
	d.mu.Unlock()

	d.sync.SetSession(code, userID)
	go d.poller.Run(pollCtx, code)
	d.recompute()
}

// Logout tears everything down and clears local identity, including the
// persisted displayed step.
func (d *Device) Logout() {
	d.sync.Stop()

	d.mu.Lock()
	if d.pollCancel != nil {
		d.pollCancel()
		d.pollCancel = nil
	}
	sess := d.session
	d.session = nil
	d.polled = nil
	d.current = ""
	d.mu.Unlock()

	if sess != nil {
		d.reconciler.Reset(sess.SessionCode, sess.UserID)
	}
}

// Session returns the device-local identity, or nil when logged out.
func (d *Device) Session() *ClientSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	copied := *d.session
	return &copied
}

// Step returns the currently displayed step.
func (d *Device) Step() step.Step {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Live reports whether the push connection is the authoritative source.
func (d *Device) Live() bool {
	return d.sync.Live()
}

// EffectiveSession returns the snapshot the device should trust right now.
func (d *Device) EffectiveSession() *models.Session {
	d.mu.Lock()
	polled := d.polled
	d.mu.Unlock()
	return d.sync.EffectiveSession(polled)
}

func (d *Device) applyPolled(sess *models.Session) {
	d.mu.Lock()
	d.polled = sess
	d.mu.Unlock()
	d.recompute()
}

// recompute re-derives the displayed step from the effective session.
func (d *Device) recompute() {
	d.mu.Lock()
	if d.session == nil {
		d.mu.Unlock()
		return
	}
	ident := *d.session
	polled := d.polled
	d.mu.Unlock()

	eff := d.sync.EffectiveSession(polled)
	next := d.reconciler.Current(ident.SessionCode, eff, ident.Role, ident.UserID)

	d.mu.Lock()
	if d.session == nil {
		d.mu.Unlock()
		return
	}
	d.session.LastSyncAt = time.Now().UTC()
	changed := next != d.current
	d.current = next
	d.mu.Unlock()

	if changed && d.OnStep != nil {
		d.OnStep(next)
	}
}

// sessionGone handles the terminal not-found signal: local identity is
// cleared and the device returns to an unauthenticated state.
func (d *Device) sessionGone(code string) {
	log.Info().Str("session_code", code).Msg("session gone, clearing device identity")
	d.Logout()
}
