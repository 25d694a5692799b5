package signal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/pushd/internal/core"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// PushConn is one push socket. It implements core.Connection.
// Frames are queued and written by the write pump only.
type PushConn struct {
	id    core.ConnectionID
	conn  *websocket.Conn
	clock clockwork.Clock

	send chan []byte
	done chan struct{}

	state    atomic.Int32
	activity atomic.Int64

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	observers map[int]func()
	nextObs   int
}

func NewPushConn(ws *websocket.Conn, clock clockwork.Clock, buffer int) *PushConn {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if buffer <= 0 {
		buffer = 1
	}
	c := &PushConn{
		id:        core.ConnectionID(uuid.NewString()),
		conn:      ws,
		clock:     clock,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		observers: make(map[int]func()),
	}
	c.state.Store(int32(core.StateOpen))
	c.touch()
	return c
}

func (c *PushConn) ID() core.ConnectionID { return c.id }

func (c *PushConn) State() core.ConnState { return core.ConnState(c.state.Load()) }

func (c *PushConn) LastActivity() time.Time { return time.Unix(0, c.activity.Load()) }

func (c *PushConn) touch() { c.activity.Store(c.clock.Now().UnixNano()) }

// Send encodes env and queues it for the write pump. A full queue blocks
// until ctx ends.
func (c *PushConn) Send(ctx context.Context, env core.Envelope) error {
	if c.State() != core.StateOpen {
		return core.ErrNotOpen
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return core.ErrNotOpen
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return core.ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnClosed registers fn to run once when the socket closes. If it is
// already closed fn runs right away.
func (c *PushConn) OnClosed(fn func()) func() {
	c.mu.Lock()
	if c.closed {
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

// Close tears down the socket and notifies observers. Safe to call from
// both pumps.
func (c *PushConn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(core.StateClosing))
		close(c.done)
		_ = c.conn.Close()
		c.state.Store(int32(core.StateClosed))

		c.mu.Lock()
		c.closed = true
		obs := make([]func(), 0, len(c.observers))
		for _, fn := range c.observers {
			obs = append(obs, fn)
		}
		clear(c.observers)
		c.mu.Unlock()

		for _, fn := range obs {
			fn()
		}
	})
}

// Done is closed once the socket is closed.
func (c *PushConn) Done() <-chan struct{} { return c.done }

var _ core.Connection = (*PushConn)(nil)
