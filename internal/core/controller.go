package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/pushd/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// connEntry is one tracked connection plus its closure subscription.
type connEntry struct {
	conn Connection

	mu       sync.Mutex
	cancel   func()
	released bool
}

func (e *connEntry) setCancel(cancel func()) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		cancel()
		return
	}
	e.cancel = cancel
	e.mu.Unlock()
}

func (e *connEntry) release() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.released = true
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Controller fans push messages out to the connections of one session.
//
// The connection set is an immutable slice swapped with compare-and-swap on
// every add/remove. Readers work on whatever slice they loaded. The session
// moves to the terminal ended state at most once, when its last open
// connection closes. A session that never had an open connection never ends.
type Controller struct {
	session  *domain.Session
	notifier SessionNotifier
	gate     Gate
	logger   zerolog.Logger

	conns     atomic.Pointer[[]*connEntry]
	wasActive atomic.Bool
	ended     atomic.Bool
	disposed  atomic.Bool
}

func NewController(session *domain.Session, notifier SessionNotifier, gate Gate) *Controller {
	c := &Controller{
		session:  session,
		notifier: notifier,
		gate:     gate,
		logger: log.With().
			Str("module", "core.controller").
			Str("sid", string(session.ID)).
			Logger(),
	}
	c.conns.Store(&[]*connEntry{})
	return c
}

func (c *Controller) Session() *domain.Session { return c.session }
func (c *Controller) ID() domain.SessionID     { return c.session.ID }

// Ended reports whether the session-ended signal has been raised.
func (c *Controller) Ended() bool { return c.ended.Load() }

// WasActive reports whether an open connection was ever added.
func (c *Controller) WasActive() bool { return c.wasActive.Load() }

func (c *Controller) snapshot() []*connEntry { return *c.conns.Load() }

// AddConnection starts tracking conn and subscribes to its closure. Adding a
// connection that is already tracked is a no-op.
func (c *Controller) AddConnection(conn Connection) {
	e := &connEntry{conn: conn}
	for {
		old := c.conns.Load()
		if slices.ContainsFunc(*old, func(x *connEntry) bool { return x.conn.ID() == conn.ID() }) {
			return
		}
		next := make([]*connEntry, 0, len(*old)+1)
		next = append(next, *old...)
		next = append(next, e)
		if c.conns.CompareAndSwap(old, &next) {
			break
		}
	}
	open := conn.State() == StateOpen
	if open {
		c.wasActive.Store(true)
	}
	c.logger.Info().Str("conn", string(conn.ID())).Msg("connection added")

	if c.disposed.Load() {
		return
	}
	e.setCancel(conn.OnClosed(func() { c.RemoveOnClosed(conn) }))

	if open && !c.ended.Load() {
		c.reportCapabilities()
	}
}

// RemoveOnClosed is the closure handler registered by AddConnection. It is
// idempotent and does nothing once the controller is disposed.
func (c *Controller) RemoveOnClosed(conn Connection) {
	if c.disposed.Load() {
		return
	}
	var (
		removed *connEntry
		next    []*connEntry
	)
	for {
		old := c.conns.Load()
		idx := slices.IndexFunc(*old, func(x *connEntry) bool { return x.conn.ID() == conn.ID() })
		if idx < 0 {
			return
		}
		next = make([]*connEntry, 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if c.conns.CompareAndSwap(old, &next) {
			removed = (*old)[idx]
			break
		}
	}
	removed.release()

	active := countOpen(next)
	c.logger.Info().
		Str("conn", string(conn.ID())).
		Int("active", active).
		Int("tracked", len(next)).
		Msg("connection removed")

	switch {
	case active > 0:
		c.reportCapabilities()
	case c.wasActive.Load():
		c.end()
	}
}

func (c *Controller) end() {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info().Msg("session ended")
	c.notify("session ended", func() error { return c.notifier.OnSessionEnded(c.session.ID) })
}

func (c *Controller) reportCapabilities() {
	if c.ended.Load() {
		return
	}
	snap := c.Capabilities()
	c.notify("capabilities changed", func() error {
		return c.notifier.OnCapabilitiesChanged(c.session.ID, snap)
	})
}

// notify shields the controller from a failing or panicking notifier.
func (c *Controller) notify(what string, fn func() error) {
	if c.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("signal", what).Msg("notifier panicked")
		}
	}()
	if err := fn(); err != nil {
		c.logger.Error().Err(err).Str("signal", what).Msg("error reporting to registry")
	}
}

// IsSessionActive reports whether any tracked connection is open.
func (c *Controller) IsSessionActive() bool {
	return countOpen(c.snapshot()) > 0
}

// SupportsMediaControl reports whether the session can currently be remote
// controlled.
func (c *Controller) SupportsMediaControl() bool { return c.IsSessionActive() }

// ActiveCount is the number of open connections.
func (c *Controller) ActiveCount() int { return countOpen(c.snapshot()) }

// Capabilities derives the current snapshot from the declared capabilities
// and the live connection set.
func (c *Controller) Capabilities() domain.CapabilitySnapshot {
	return c.session.Capabilities.Snapshot(c.SupportsMediaControl())
}

// Connections returns the tracked connections in registration order.
func (c *Controller) Connections() []Connection {
	snap := c.snapshot()
	out := make([]Connection, len(snap))
	for i, e := range snap {
		out[i] = e.conn
	}
	return out
}

// activeConnection picks the open connection with the most recent activity.
// Ties go to the earliest registered connection.
func (c *Controller) activeConnection() Connection {
	var best Connection
	var bestAt int64
	for _, e := range c.snapshot() {
		if e.conn.State() != StateOpen {
			continue
		}
		at := e.conn.LastActivity().UnixNano()
		if best == nil || at > bestAt {
			best, bestAt = e.conn, at
		}
	}
	return best
}

func (c *Controller) activeConnections() []Connection {
	snap := c.snapshot()
	out := make([]Connection, 0, len(snap))
	for _, e := range snap {
		if e.conn.State() == StateOpen {
			out = append(out, e.conn)
		}
	}
	return out
}

// SendUnicast delivers env to exactly one connection: the open one with the
// most recent activity.
func (c *Controller) SendUnicast(ctx context.Context, env Envelope) error {
	if c.skip(env) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	conn := c.activeConnection()
	if conn == nil {
		return ErrNoActiveConnection
	}
	if err := conn.Send(ctx, env); err != nil {
		if causedBy(ctx, err) {
			return cancelled(err)
		}
		return fmt.Errorf("%w: connection %s: %w", ErrDeliveryFailed, conn.ID(), err)
	}
	c.logger.Debug().Str("conn", string(conn.ID())).Str("type", string(env.MessageType)).Msg("unicast sent")
	return nil
}

// SendMulticast delivers env to every open connection concurrently and
// waits for all attempts. Failures of individual connections are logged and
// counted, never returned. The only error is ErrCancelled, when at least
// one attempt was cut short by ctx.
func (c *Controller) SendMulticast(ctx context.Context, env Envelope) (PublishResult, error) {
	if c.skip(env) {
		return PublishResult{Skipped: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return PublishResult{}, cancelled(err)
	}

	targets := c.activeConnections()
	var sent, aborted atomic.Int64
	var wg conc.WaitGroup
	for _, conn := range targets {
		wg.Go(func() {
			if err := conn.Send(ctx, env); err != nil {
				if causedBy(ctx, err) {
					aborted.Add(1)
				}
				c.logger.Error().
					Err(err).
					Str("conn", string(conn.ID())).
					Str("type", string(env.MessageType)).
					Msg("error sending push message")
				return
			}
			sent.Add(1)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		c.logger.Error().Str("panic", r.String()).Str("type", string(env.MessageType)).Msg("push delivery panicked")
	}

	res := PublishResult{SendTo: int(sent.Load())}
	res.Failed = len(targets) - res.SendTo
	c.logger.Debug().
		Str("type", string(env.MessageType)).
		Int("sent_to", res.SendTo).
		Int("failed", res.Failed).
		Msg("multicast result")

	if aborted.Load() > 0 {
		return res, cancelled(ctx.Err())
	}
	return res, nil
}

func (c *Controller) skip(env Envelope) bool {
	if !c.gate.Skip(c.session) {
		return false
	}
	c.logger.Debug().
		Str("client", c.session.Client).
		Str("version", c.session.ApplicationVersion).
		Str("type", string(env.MessageType)).
		Msg("skipping push message to legacy client")
	return true
}

// Dispose unsubscribes from every connection so that no further closure
// signal reaches the controller. Transports stay open.
func (c *Controller) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	for _, e := range c.snapshot() {
		e.release()
	}
	c.logger.Debug().Msg("controller disposed")
}

func countOpen(entries []*connEntry) int {
	n := 0
	for _, e := range entries {
		if e.conn.State() == StateOpen {
			n++
		}
	}
	return n
}

// causedBy reports whether err is the cancellation of ctx.
func causedBy(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
