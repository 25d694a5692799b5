package coretest

import (
	"sync"

	"github.com/dkeye/pushd/internal/domain"
)

// Notifier records every signal a controller raises. Err, when set, is
// returned from both callbacks.
type Notifier struct {
	Err error

	mu    sync.Mutex
	ended []domain.SessionID
	caps  []domain.CapabilitySnapshot
}

func (n *Notifier) OnSessionEnded(id domain.SessionID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, id)
	return n.Err
}

func (n *Notifier) OnCapabilitiesChanged(_ domain.SessionID, snap domain.CapabilitySnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.caps = append(n.caps, snap)
	return n.Err
}

func (n *Notifier) Ended() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ended)
}

func (n *Notifier) CapabilityChanges() []domain.CapabilitySnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.CapabilitySnapshot(nil), n.caps...)
}
