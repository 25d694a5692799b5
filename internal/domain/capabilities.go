package domain

import (
	"slices"
	"strings"
)

// Capabilities is what a session declared it can do.
type Capabilities struct {
	PlayableMediaTypes []string `json:"playableMediaTypes"`
	SupportedCommands  []string `json:"supportedCommands"`
}

// NewCapabilities trims, drops empties and de-duplicates both lists while
// keeping the declared order.
func NewCapabilities(mediaTypes, commands []string) Capabilities {
	return Capabilities{
		PlayableMediaTypes: normalizeList(mediaTypes),
		SupportedCommands:  normalizeList(commands),
	}
}

func (c Capabilities) SupportsCommand(name string) bool {
	return slices.ContainsFunc(c.SupportedCommands, func(s string) bool {
		return strings.EqualFold(s, name)
	})
}

// CapabilitySnapshot is the derived view of a session's live connection set.
type CapabilitySnapshot struct {
	PlayableMediaTypes   []string `json:"playableMediaTypes"`
	SupportedCommands    []string `json:"supportedCommands"`
	SupportsMediaControl bool     `json:"supportsMediaControl"`
}

// Snapshot combines the declared capabilities with the live state. The
// returned slices are copies.
func (c Capabilities) Snapshot(supportsMediaControl bool) CapabilitySnapshot {
	return CapabilitySnapshot{
		PlayableMediaTypes:   slices.Clone(c.PlayableMediaTypes),
		SupportedCommands:    slices.Clone(c.SupportedCommands),
		SupportsMediaControl: supportsMediaControl,
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if slices.ContainsFunc(out, func(s string) bool { return strings.EqualFold(s, v) }) {
			continue
		}
		out = append(out, v)
	}
	return out
}
