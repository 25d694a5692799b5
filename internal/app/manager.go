package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/dkeye/pushd/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultSendTimeout = 10 * time.Second
	DefaultConcurrency = 16
)

// BroadcastResult sums the per-session multicast results.
type BroadcastResult struct {
	Sessions int `json:"sessions"`
	SendTo   int `json:"sentTo"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Manager is where producers (playback engine, library notifier, server
// lifecycle) enter. It resolves sessions by id and never assumes an ambient
// current session.
type Manager struct {
	Registry *Registry
	Metrics  *metrics.Metrics

	sendTimeout time.Duration
	concurrency int
}

func NewManager(reg *Registry, m *metrics.Metrics, sendTimeout time.Duration, concurrency int) *Manager {
	if m == nil {
		m = metrics.NewNoop()
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	mgr := &Manager{
		Registry:    reg,
		Metrics:     m,
		sendTimeout: sendTimeout,
		concurrency: concurrency,
	}
	reg.OnEnded(mgr.onSessionEnded)
	return mgr
}

// Connect binds a freshly opened connection to its session.
func (m *Manager) Connect(s *domain.Session, conn core.Connection) *core.Controller {
	return m.Registry.Bind(s, conn)
}

func (m *Manager) controller(id domain.SessionID) (*core.Controller, error) {
	ctrl, ok := m.Registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ctrl, nil
}

func (m *Manager) SendPlayCommand(ctx context.Context, id domain.SessionID, req core.PlayRequest) error {
	return m.unicast(ctx, id, core.NewEnvelope(core.MsgPlay, req))
}

func (m *Manager) SendPlaystateCommand(ctx context.Context, id domain.SessionID, req core.PlaystateRequest) error {
	return m.unicast(ctx, id, core.NewEnvelope(core.MsgPlaystate, req))
}

func (m *Manager) SendGeneralCommand(ctx context.Context, id domain.SessionID, cmd core.GeneralCommand) error {
	return m.unicast(ctx, id, core.NewEnvelope(core.MsgGeneralCommand, cmd))
}

func (m *Manager) unicast(ctx context.Context, id domain.SessionID, env core.Envelope) error {
	ctrl, err := m.controller(id)
	if err != nil {
		m.Metrics.UnicastErrors.WithLabelValues("not_found").Inc()
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	err = ctrl.SendUnicast(ctx, env)
	switch {
	case err == nil && ctrl.Withheld():
		m.Metrics.MessagesSkipped.WithLabelValues(string(env.MessageType)).Inc()
	case err == nil:
		m.Metrics.MessagesSent.WithLabelValues(string(env.MessageType)).Inc()
	case errors.Is(err, core.ErrNoActiveConnection):
		m.Metrics.UnicastErrors.WithLabelValues("no_connection").Inc()
	case errors.Is(err, core.ErrCancelled):
		m.Metrics.UnicastErrors.WithLabelValues("cancelled").Inc()
	default:
		m.Metrics.UnicastErrors.WithLabelValues("delivery_failed").Inc()
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("module", "app.manager").
			Str("sid", string(id)).
			Str("type", string(env.MessageType)).
			Msg("unicast failed")
	}
	return err
}

func (m *Manager) BroadcastLibraryChanged(ctx context.Context, info core.LibraryUpdateInfo) (BroadcastResult, error) {
	return m.broadcast(ctx, core.NewEnvelope(core.MsgLibraryChanged, info), nil)
}

// BroadcastUserDataChanged only reaches the sessions signed in as info.UserID.
func (m *Manager) BroadcastUserDataChanged(ctx context.Context, info core.UserDataChangeInfo) (BroadcastResult, error) {
	return m.broadcast(ctx, core.NewEnvelope(core.MsgUserDataChanged, info), func(c *core.Controller) bool {
		return c.BelongsTo(info.UserID)
	})
}

func (m *Manager) BroadcastRestartRequired(ctx context.Context, info core.SystemInfo) (BroadcastResult, error) {
	return m.broadcast(ctx, core.NewEnvelope(core.MsgRestartRequired, info), nil)
}

func (m *Manager) BroadcastServerShuttingDown(ctx context.Context) (BroadcastResult, error) {
	return m.broadcast(ctx, core.NewEnvelope(core.MsgServerShuttingDown, ""), nil)
}

func (m *Manager) BroadcastServerRestarting(ctx context.Context) (BroadcastResult, error) {
	return m.broadcast(ctx, core.NewEnvelope(core.MsgServerRestarting, ""), nil)
}

// ReportPlaybackStart tells every other session that id started playing itemID.
func (m *Manager) ReportPlaybackStart(ctx context.Context, id domain.SessionID, itemID string) (BroadcastResult, error) {
	return m.reportPlayback(ctx, core.MsgPlaybackStart, id, itemID)
}

func (m *Manager) ReportPlaybackStopped(ctx context.Context, id domain.SessionID, itemID string) (BroadcastResult, error) {
	return m.reportPlayback(ctx, core.MsgPlaybackStopped, id, itemID)
}

func (m *Manager) reportPlayback(ctx context.Context, t core.MessageType, id domain.SessionID, itemID string) (BroadcastResult, error) {
	ctrl, err := m.controller(id)
	if err != nil {
		return BroadcastResult{}, err
	}
	info := ctrl.Info()
	info.NowPlayingItemID = itemID
	return m.broadcast(ctx, core.NewEnvelope(t, info), func(c *core.Controller) bool {
		return c.ID() != id
	})
}

// onSessionEnded tells the remaining sessions that one went away.
func (m *Manager) onSessionEnded(info core.SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	res, err := m.broadcast(ctx, core.NewEnvelope(core.MsgSessionEnded, info), func(c *core.Controller) bool {
		return c.ID() != info.ID
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.manager").Str("sid", string(info.ID)).Msg("session ended notice incomplete")
		return
	}
	log.Debug().Str("module", "app.manager").Str("sid", string(info.ID)).Int("sent_to", res.SendTo).Msg("session ended notice sent")
}

// broadcast multicasts env to every matching session through a bounded
// pool. Only cancellation is reported as an error.
func (m *Manager) broadcast(ctx context.Context, env core.Envelope, match func(*core.Controller) bool) (BroadcastResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		total     BroadcastResult
		cancelErr error
	)
	p := pool.New().WithMaxGoroutines(m.concurrency)
	for _, ctrl := range m.Registry.Controllers() {
		if match != nil && !match(ctrl) {
			continue
		}
		p.Go(func() {
			res, err := ctrl.SendMulticast(ctx, env)
			mu.Lock()
			defer mu.Unlock()
			total.Sessions++
			total.SendTo += res.SendTo
			total.Failed += res.Failed
			if res.Skipped {
				total.Skipped++
			}
			if err != nil && cancelErr == nil {
				cancelErr = err
			}
		})
	}
	p.Wait()

	typ := string(env.MessageType)
	m.Metrics.MessagesSent.WithLabelValues(typ).Add(float64(total.SendTo))
	m.Metrics.DeliveryFailures.WithLabelValues(typ).Add(float64(total.Failed))
	m.Metrics.MessagesSkipped.WithLabelValues(typ).Add(float64(total.Skipped))

	log.Debug().
		Str("module", "app.manager").
		Str("type", typ).
		Int("sessions", total.Sessions).
		Int("sent_to", total.SendTo).
		Int("failed", total.Failed).
		Int("skipped", total.Skipped).
		Msg("broadcast result")
	return total, cancelErr
}

func (m *Manager) Sessions() []SessionSummary { return m.Registry.List() }

func (m *Manager) Session(id domain.SessionID) (SessionSummary, error) {
	s, ok := m.Registry.Summary(id)
	if !ok {
		return SessionSummary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Shutdown warns every client and drops all controllers. Sockets are closed
// by the transport when the server context ends.
func (m *Manager) Shutdown(ctx context.Context) {
	if _, err := m.BroadcastServerShuttingDown(ctx); err != nil {
		log.Warn().Err(err).Str("module", "app.manager").Msg("shutdown notice incomplete")
	}
	m.Registry.Close()
}
