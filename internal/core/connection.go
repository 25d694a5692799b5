package core

import (
	"context"
	"time"
)

type ConnectionID string

// ConnState is the lifecycle of one push connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection abstracts one duplex push channel to a client.
// Owned by the adapter; the controller tracks membership only and never
// closes it.
type Connection interface {
	ID() ConnectionID
	State() ConnState
	// LastActivity never goes backwards while the connection is open.
	LastActivity() time.Time
	// Send delivers one envelope. It fails with ErrNotOpen unless the
	// connection is open and returns ctx.Err() if ctx ends first.
	Send(ctx context.Context, env Envelope) error
	// OnClosed registers fn to run once when the connection closes. If the
	// connection is already closed fn runs immediately. The returned func
	// unregisters fn.
	OnClosed(fn func()) (cancel func())
}
