package app

import (
	"sync"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/dkeye/pushd/internal/metrics"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Controller   *core.Controller
	Capabilities domain.CapabilitySnapshot
	Since        time.Time
}

// SessionSummary is a read-only view for APIs (no transport fields).
type SessionSummary struct {
	Session      *domain.Session           `json:"session"`
	Active       bool                      `json:"active"`
	Capabilities domain.CapabilitySnapshot `json:"capabilities"`
	Connections  int                       `json:"connections"`
	Since        time.Time                 `json:"since"`
}

// Registry owns one Controller per session and receives their lifecycle
// signals. It never touches transport resources.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry

	gate    core.Gate
	metrics *metrics.Metrics
	now     func() time.Time

	hookMu  sync.RWMutex
	onEnded func(core.SessionInfo)
}

func NewRegistry(gate core.Gate, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionEntry),
		gate:     gate,
		metrics:  m,
		now:      time.Now,
	}
}

// OnEnded sets a hook called, on its own goroutine, after a session ended
// and was removed.
func (r *Registry) OnEnded(fn func(core.SessionInfo)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onEnded = fn
}

// Bind attaches conn to the controller of s, creating it on first use.
func (r *Registry) Bind(s *domain.Session, conn core.Connection) *core.Controller {
	for {
		ctrl := r.getOrCreate(s)
		ctrl.AddConnection(conn)
		if conn.State() != core.StateOpen {
			r.dropUnused(ctrl)
			return ctrl
		}
		// An ended controller may still sit in the map while its ended
		// signal is in flight, or a dead bind may have dropped it; bind to a
		// fresh one instead.
		if !ctrl.Ended() && r.current(s.ID) == ctrl {
			log.Info().
				Str("module", "app.registry").
				Str("sid", string(s.ID)).
				Str("conn", string(conn.ID())).
				Msg("bound connection")
			return ctrl
		}
		log.Debug().Str("module", "app.registry").Str("sid", string(s.ID)).Msg("controller gone while binding, retrying")
	}
}

func (r *Registry) current(id domain.SessionID) *core.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Controller
	}
	return nil
}

// dropUnused removes a controller that never had an open connection and
// tracks none.
func (r *Registry) dropUnused(ctrl *core.Controller) {
	r.mu.Lock()
	e, ok := r.sessions[ctrl.ID()]
	if !ok || e.Controller != ctrl || ctrl.WasActive() || len(ctrl.Connections()) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, ctrl.ID())
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	ctrl.Dispose()
	log.Debug().Str("module", "app.registry").Str("sid", string(ctrl.ID())).Msg("dropped never active session")
}

func (r *Registry) getOrCreate(s *domain.Session) *core.Controller {
	r.mu.RLock()
	e, ok := r.sessions[s.ID]
	r.mu.RUnlock()
	if ok && !e.Controller.Ended() {
		return e.Controller
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.sessions[s.ID]; ok {
		if !e.Controller.Ended() {
			return e.Controller
		}
		e.Controller.Dispose()
	}
	ctrl := core.NewController(s, r, r.gate)
	r.sessions[s.ID] = &sessionEntry{
		Controller:   ctrl,
		Capabilities: ctrl.Capabilities(),
		Since:        r.now(),
	}
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	log.Info().
		Str("module", "app.registry").
		Str("sid", string(s.ID)).
		Str("client", s.Client).
		Str("version", s.ApplicationVersion).
		Str("device", string(s.DeviceID)).
		Msg("created session")
	return ctrl
}

// Lookup finds the controller of a live session.
func (r *Registry) Lookup(id domain.SessionID) (*core.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.Controller.Ended() {
		return nil, false
	}
	return e.Controller, true
}

// Controllers returns every live controller.
func (r *Registry) Controllers() []*core.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Controller, 0, len(r.sessions))
	for _, e := range r.sessions {
		if !e.Controller.Ended() {
			out = append(out, e.Controller)
		}
	}
	return out
}

func (r *Registry) Summary(id domain.SessionID) (SessionSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.Controller.Ended() {
		return SessionSummary{}, false
	}
	return summarize(e), true
}

func (r *Registry) List() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSummary, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Controller.Ended() {
			continue
		}
		out = append(out, summarize(e))
	}
	return out
}

func summarize(e *sessionEntry) SessionSummary {
	return SessionSummary{
		Session:      e.Controller.Session(),
		Active:       e.Controller.IsSessionActive(),
		Capabilities: e.Capabilities,
		Connections:  len(e.Controller.Connections()),
		Since:        e.Since,
	}
}

// OnSessionEnded removes and disposes the controller of id. Signals from a
// controller that was already replaced are ignored.
func (r *Registry) OnSessionEnded(id domain.SessionID) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || !e.Controller.Ended() {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, id)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	e.Controller.Dispose()
	r.metrics.SessionsEnded.Inc()
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("session ended")

	r.hookMu.RLock()
	hook := r.onEnded
	r.hookMu.RUnlock()
	if hook != nil {
		info := core.NewSessionInfo(e.Controller.Session(), e.Controller.Capabilities())
		go hook(info)
	}
	return nil
}

func (r *Registry) OnCapabilitiesChanged(id domain.SessionID, snap domain.CapabilitySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.Capabilities = snap
	}
	log.Debug().
		Str("module", "app.registry").
		Str("sid", string(id)).
		Bool("media_control", snap.SupportsMediaControl).
		Msg("capabilities changed")
	return nil
}

// Close disposes every controller. Transports are left to their owners.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[domain.SessionID]*sessionEntry)
	r.metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.Controller.Dispose()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(entries)).Msg("registry closed")
}
