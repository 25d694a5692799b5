package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	assert.Equal(t, "mb-classic", cfg.Compat.LegacyClient)
	assert.Equal(t, "3.0.196", cfg.Compat.MinVersion)
	assert.Equal(t, 20, cfg.InboundRate.Limit)
}

func TestLoadFile_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9000
secret: a-very-long-test-secret
keep_alive: 30s
compat:
  legacy_client: old-app
  min_version: 2.1
`)
	t.Setenv("PUSH_PORT", "9100")
	t.Setenv("PUSH_INBOUND_RATE_LIMIT", "5")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, "old-app", cfg.Compat.LegacyClient)
	assert.Equal(t, "2.1", cfg.Compat.MinVersion)
	assert.Equal(t, 5, cfg.InboundRate.Limit)
}

func TestLoadFile_InvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad mode", "mode: loud"},
		{"bad port", "port: 70000"},
		{"short secret", "secret: short"},
		{"ping after pong", "ping_period: 90s\npong_wait: 60s"},
		{"zero buffer", "send_buffer: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MalformedYAML(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "port: [unclosed"))
	assert.Error(t, err)
}
