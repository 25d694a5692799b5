package core

import "github.com/dkeye/pushd/internal/domain"

// SessionNotifier receives lifecycle signals from a Controller. Signals are
// fire-and-forget; a returned error is only logged.
type SessionNotifier interface {
	OnSessionEnded(id domain.SessionID) error
	OnCapabilitiesChanged(id domain.SessionID, snap domain.CapabilitySnapshot) error
}

// PublishResult reports the outcome of a multicast.
type PublishResult struct {
	SendTo  int
	Failed  int
	Skipped bool
}
