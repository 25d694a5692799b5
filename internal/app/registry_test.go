package app

import (
	"testing"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BindReusesControllerPerSession(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	s := newSession(t, "dev-1")

	a := reg.Bind(s, coretest.NewConn(t0))
	b := reg.Bind(s, coretest.NewConn(t0))
	other := reg.Bind(newSession(t, "dev-2"), coretest.NewConn(t0))

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Len(t, a.Connections(), 2)
	assert.Len(t, reg.List(), 2)
}

func TestRegistry_EndedSessionIsRemovedAndReported(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	ended := make(chan core.SessionInfo, 1)
	reg.OnEnded(func(info core.SessionInfo) { ended <- info })

	s := newSession(t, "dev-1")
	conn := coretest.NewConn(t0)
	ctrl := reg.Bind(s, conn)

	conn.Close()

	select {
	case info := <-ended:
		assert.Equal(t, s.ID, info.ID)
		assert.False(t, info.SupportsMediaControl)
	case <-time.After(time.Second):
		t.Fatal("ended hook not called")
	}
	_, ok := reg.Lookup(s.ID)
	assert.False(t, ok)
	assert.True(t, ctrl.Ended())
	assert.Empty(t, reg.List())
}

func TestRegistry_RebindAfterEndCreatesFreshController(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	s := newSession(t, "dev-1")
	first := coretest.NewConn(t0)
	old := reg.Bind(s, first)
	first.Close()

	fresh := reg.Bind(s, coretest.NewConn(t0))
	assert.NotSame(t, old, fresh)
	assert.False(t, fresh.Ended())

	got, ok := reg.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestRegistry_StaleEndedSignalIsIgnored(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	s := newSession(t, "dev-1")
	ctrl := reg.Bind(s, coretest.NewConn(t0))

	require.NoError(t, reg.OnSessionEnded(s.ID))

	got, ok := reg.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, ctrl, got)
}

func TestRegistry_CapabilitiesTrackConnections(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	s := newSession(t, "dev-1")
	a := coretest.NewConn(t0)
	b := coretest.NewConn(t0)
	reg.Bind(s, a)
	reg.Bind(s, b)

	sum, ok := reg.Summary(s.ID)
	require.True(t, ok)
	assert.True(t, sum.Active)
	assert.True(t, sum.Capabilities.SupportsMediaControl)
	assert.Equal(t, []string{"Audio"}, sum.Capabilities.PlayableMediaTypes)
	assert.Equal(t, 2, sum.Connections)

	a.Close()
	sum, ok = reg.Summary(s.ID)
	require.True(t, ok)
	assert.Equal(t, 1, sum.Connections)
}

func TestRegistry_CloseDisposesControllers(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	conn := coretest.NewConn(t0)
	reg.Bind(newSession(t, "dev-1"), conn)

	reg.Close()

	assert.Empty(t, reg.List())
	assert.Equal(t, 0, conn.Observers())
	assert.Equal(t, core.StateOpen, conn.State())
}

func TestRegistry_DeadConnectionLeavesNoSession(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	ended := make(chan core.SessionInfo, 1)
	reg.OnEnded(func(info core.SessionInfo) { ended <- info })

	s := newSession(t, "dev-1")
	dead := coretest.NewConn(t0)
	dead.Close()
	ctrl := reg.Bind(s, dead)

	assert.False(t, ctrl.Ended())
	_, ok := reg.Lookup(s.ID)
	assert.False(t, ok)
	assert.Empty(t, reg.List())
	select {
	case <-ended:
		t.Fatal("session that never opened reported as ended")
	case <-time.After(20 * time.Millisecond):
	}

	live := reg.Bind(s, coretest.NewConn(t0))
	assert.NotSame(t, ctrl, live)
	got, ok := reg.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, live, got)
}

func TestRegistry_DeadConnectionKeepsLiveSession(t *testing.T) {
	reg := NewRegistry(core.DefaultGate(), nil)
	s := newSession(t, "dev-1")
	live := reg.Bind(s, coretest.NewConn(t0))

	dead := coretest.NewConn(t0)
	dead.Close()
	assert.Same(t, live, reg.Bind(s, dead))

	got, ok := reg.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, live, got)
	assert.Len(t, live.Connections(), 1)
}
