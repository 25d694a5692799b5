// Package coretest provides an in-memory core.Connection for tests.
package coretest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/google/uuid"
)

// Conn records every envelope it is asked to send. SendFunc, when set,
// replaces the default delivery and can block or fail.
type Conn struct {
	id       core.ConnectionID
	state    atomic.Int32
	activity atomic.Int64

	SendFunc func(ctx context.Context, env core.Envelope) error

	mu        sync.Mutex
	sent      []core.Envelope
	observers map[int]func()
	nextObs   int
}

// NewConn returns an open connection whose last activity is at.
func NewConn(at time.Time) *Conn {
	c := &Conn{
		id:        core.ConnectionID(uuid.NewString()),
		observers: make(map[int]func()),
	}
	c.state.Store(int32(core.StateOpen))
	c.activity.Store(at.UnixNano())
	return c
}

func (c *Conn) ID() core.ConnectionID { return c.id }

func (c *Conn) State() core.ConnState { return core.ConnState(c.state.Load()) }

func (c *Conn) SetState(s core.ConnState) { c.state.Store(int32(s)) }

func (c *Conn) LastActivity() time.Time { return time.Unix(0, c.activity.Load()) }

func (c *Conn) Touch(at time.Time) { c.activity.Store(at.UnixNano()) }

func (c *Conn) Send(ctx context.Context, env core.Envelope) error {
	if c.State() != core.StateOpen {
		return core.ErrNotOpen
	}
	if c.SendFunc != nil {
		if err := c.SendFunc(ctx, env); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

// Sent returns a copy of the delivered envelopes.
func (c *Conn) Sent() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Envelope(nil), c.sent...)
}

// SentTypes returns the message types of the delivered envelopes.
func (c *Conn) SentTypes() []core.MessageType {
	sent := c.Sent()
	out := make([]core.MessageType, len(sent))
	for i, e := range sent {
		out[i] = e.MessageType
	}
	return out
}

func (c *Conn) OnClosed(fn func()) func() {
	c.mu.Lock()
	if c.State() == core.StateClosed {
		c.mu.Unlock()
		fn()
		return func() {}
	}
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Observers is the number of registered closure observers.
func (c *Conn) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// Close marks the connection closed and notifies observers once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.State() == core.StateClosed {
		c.mu.Unlock()
		return
	}
	c.SetState(core.StateClosed)
	obs := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	clear(c.observers)
	c.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}

var _ core.Connection = (*Conn)(nil)
