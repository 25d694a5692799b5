package core

import (
	"strings"

	"github.com/dkeye/pushd/internal/domain"
)

const (
	DefaultLegacyClient     = "mb-classic"
	DefaultMinLegacyVersion = "3.0.196"
)

// Gate withholds every push message from legacy clients that are too old to
// parse the current message shapes. Messages are skipped, never degraded.
type Gate struct {
	LegacyClient string
	MinVersion   domain.Version
}

func DefaultGate() Gate {
	return Gate{
		LegacyClient: DefaultLegacyClient,
		MinVersion:   domain.MustParseVersion(DefaultMinLegacyVersion),
	}
}

// NewGate parses minVersion; an empty legacy client disables the gate.
func NewGate(legacyClient, minVersion string) (Gate, error) {
	g := Gate{LegacyClient: strings.TrimSpace(legacyClient)}
	if g.LegacyClient == "" {
		return g, nil
	}
	v, err := domain.ParseVersion(minVersion)
	if err != nil {
		return Gate{}, err
	}
	g.MinVersion = v
	return g, nil
}

// Skip reports whether sends to s must be silently dropped. Unparseable or
// missing versions are never skipped.
func (g Gate) Skip(s *domain.Session) bool {
	if s == nil || g.LegacyClient == "" {
		return false
	}
	if !strings.EqualFold(s.Client, g.LegacyClient) {
		return false
	}
	v, err := domain.ParseVersion(s.ApplicationVersion)
	if err != nil {
		return false
	}
	return v.Less(g.MinVersion)
}
