package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxClientLen     = 64
	MaxDeviceIDLen   = 128
	MaxDeviceNameLen = 128
)

var (
	ErrClientEmpty     = errors.New("client empty")
	ErrClientTooLong   = errors.New("client too long")
	ErrDeviceIDEmpty   = errors.New("device id empty")
	ErrDeviceIDTooLong = errors.New("device id too long")
)

// sessionNamespace scopes name-based session ids so that the same
// client/device pair always maps to the same session.
var sessionNamespace = uuid.MustParse("6f1c3f0e-6a51-4c2b-9a9e-2f4d8b7e1c55")

type (
	SessionID string
	DeviceID  string
)

// Session is what a client declared about itself when it connected.
// It is never mutated after construction; changed declarations produce a
// new Session.
type Session struct {
	ID                 SessionID    `json:"id"`
	User               User         `json:"user"`
	Client             string       `json:"client"`
	ApplicationVersion string       `json:"applicationVersion"`
	DeviceID           DeviceID     `json:"deviceId"`
	DeviceName         string       `json:"deviceName,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
}

// SessionDeclaration is the raw, untrusted input a transport collects
// before a Session is built.
type SessionDeclaration struct {
	Client             string
	ApplicationVersion string
	DeviceID           string
	DeviceName         string
	User               User
	PlayableMediaTypes []string
	SupportedCommands  []string
}

// NewSession validates a declaration and derives the session id from the
// client and device id.
func NewSession(d SessionDeclaration) (*Session, error) {
	client := strings.TrimSpace(d.Client)
	device := strings.TrimSpace(d.DeviceID)
	switch {
	case client == "":
		return nil, ErrClientEmpty
	case len(client) > MaxClientLen:
		return nil, ErrClientTooLong
	case device == "":
		return nil, ErrDeviceIDEmpty
	case len(device) > MaxDeviceIDLen:
		return nil, ErrDeviceIDTooLong
	}

	name := strings.TrimSpace(d.DeviceName)
	if len(name) > MaxDeviceNameLen {
		name = name[:MaxDeviceNameLen]
	}

	return &Session{
		ID:                 SessionIDFor(client, DeviceID(device)),
		User:               d.User,
		Client:             client,
		ApplicationVersion: strings.TrimSpace(d.ApplicationVersion),
		DeviceID:           DeviceID(device),
		DeviceName:         name,
		Capabilities:       NewCapabilities(d.PlayableMediaTypes, d.SupportedCommands),
	}, nil
}

// SessionIDFor returns the stable id of the session a client/device pair
// belongs to. Client names compare case-insensitively.
func SessionIDFor(client string, device DeviceID) SessionID {
	key := strings.ToLower(client) + "\x00" + string(device)
	return SessionID(uuid.NewSHA1(sessionNamespace, []byte(key)).String())
}
