package app

import (
	"testing"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/dkeye/pushd/internal/metrics"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type declOpt func(*domain.SessionDeclaration)

func withUser(id string) declOpt {
	return func(d *domain.SessionDeclaration) { d.User = domain.User{ID: domain.UserID(id)} }
}

func withClient(client, version string) declOpt {
	return func(d *domain.SessionDeclaration) {
		d.Client = client
		d.ApplicationVersion = version
	}
}

func newSession(t *testing.T, device string, opts ...declOpt) *domain.Session {
	t.Helper()
	d := domain.SessionDeclaration{
		Client:             "web",
		ApplicationVersion: "1.0.0",
		DeviceID:           device,
		PlayableMediaTypes: []string{"Audio"},
	}
	for _, o := range opts {
		o(&d)
	}
	s, err := domain.NewSession(d)
	require.NoError(t, err)
	return s
}

func newTestManager(t *testing.T) (*Manager, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNoop()
	reg := NewRegistry(core.DefaultGate(), m)
	return NewManager(reg, m, time.Second, 4), m
}
