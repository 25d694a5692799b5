package core

import "errors"

var (
	// ErrNoActiveConnection is returned by unicast sends when the session has
	// no open connection.
	ErrNoActiveConnection = errors.New("session has no open connection")
	// ErrDeliveryFailed wraps a transport error from a single connection.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrCancelled is returned when the caller's context ended before a send
	// completed.
	ErrCancelled = errors.New("send cancelled")
	// ErrNotOpen is returned by Connection.Send when the connection is not open.
	ErrNotOpen = errors.New("connection not open")
)
