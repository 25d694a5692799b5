package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	s, err := NewSession(SessionDeclaration{
		Client:             " Dashboard ",
		ApplicationVersion: "3.0.5",
		DeviceID:           "dev-1",
		DeviceName:         "Living room",
		PlayableMediaTypes: []string{"Audio", " Video", "", "audio"},
		SupportedCommands:  []string{"DisplayContent", "SetVolume"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Dashboard", s.Client)
	assert.Equal(t, DeviceID("dev-1"), s.DeviceID)
	assert.Equal(t, []string{"Audio", "Video"}, s.Capabilities.PlayableMediaTypes)
	assert.True(t, s.Capabilities.SupportsCommand("setvolume"))
	assert.Equal(t, SessionIDFor("dashboard", "dev-1"), s.ID)
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name string
		decl SessionDeclaration
		want error
	}{
		{"EmptyClient", SessionDeclaration{DeviceID: "d"}, ErrClientEmpty},
		{"EmptyDevice", SessionDeclaration{Client: "c"}, ErrDeviceIDEmpty},
		{"LongClient", SessionDeclaration{Client: strings.Repeat("c", MaxClientLen+1), DeviceID: "d"}, ErrClientTooLong},
		{"LongDevice", SessionDeclaration{Client: "c", DeviceID: strings.Repeat("d", MaxDeviceIDLen+1)}, ErrDeviceIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.decl)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSessionIDFor_StablePerDevice(t *testing.T) {
	assert.Equal(t, SessionIDFor("web", "a"), SessionIDFor("WEB", "a"))
	assert.NotEqual(t, SessionIDFor("web", "a"), SessionIDFor("web", "b"))
	assert.NotEqual(t, SessionIDFor("web", "a"), SessionIDFor("tv", "a"))
}

func TestCapabilitiesSnapshot_Copies(t *testing.T) {
	c := NewCapabilities([]string{"Audio"}, []string{"Play"})
	snap := c.Snapshot(true)
	snap.PlayableMediaTypes[0] = "Video"

	assert.Equal(t, "Audio", c.PlayableMediaTypes[0])
	assert.True(t, snap.SupportsMediaControl)
}

func TestNewUser(t *testing.T) {
	u, err := NewUser(" 42 ", "alice")
	require.NoError(t, err)
	assert.Equal(t, UserID("42"), u.ID)
	assert.False(t, u.Anonymous())

	_, err = NewUser("", strings.Repeat("x", MaxUsernameLen+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}
