package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/pushd/internal/app"
	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/dkeye/pushd/internal/metrics"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctl   *PushWSController
	mgr   *app.Manager
	m     *metrics.Metrics
	clock *clockwork.FakeClock
	url   string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New(prometheus.NewRegistry())
	mgr := app.NewManager(app.NewRegistry(core.DefaultGate(), m), m, time.Second, 4)
	clock := clockwork.NewFakeClock()
	ctl := NewPushWSController(mgr, m, clock, opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/push", func(c *gin.Context) {
		c.Set("client_token", "cookie-device")
		ctl.HandlePush(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{
		ctl:   ctl,
		mgr:   mgr,
		m:     m,
		clock: clock,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/push",
	}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireEnvelope struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHandlePush_ForceKeepAliveOnOpen(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	conn := f.dial(t, "client=web&version=1.0&deviceId=dev-1")

	env := readEnvelope(t, conn)
	assert.Equal(t, "ForceKeepAlive", env.MessageType)
	assert.JSONEq(t, "60", string(env.Data))

	sessions := f.mgr.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionIDFor("web", "dev-1"), sessions[0].Session.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.ActiveConnections))
}

func TestHandlePush_DeviceFallsBackToClientToken(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	conn := f.dial(t, "client=web&playableMediaTypes=Audio,Video&supportedCommands=GoHome")
	readEnvelope(t, conn)

	sum, err := f.mgr.Session(domain.SessionIDFor("web", "cookie-device"))
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("cookie-device"), sum.Session.DeviceID)
	assert.Equal(t, []string{"Audio", "Video"}, sum.Capabilities.PlayableMediaTypes)
	assert.Equal(t, []string{"GoHome"}, sum.Capabilities.SupportedCommands)
}

func TestHandlePush_RejectsMissingClient(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?deviceId=dev-1", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.mgr.Sessions())
}

func TestHandlePush_UnicastReachesSocket(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	conn := f.dial(t, "client=web&deviceId=dev-1")
	readEnvelope(t, conn)

	sid := domain.SessionIDFor("web", "dev-1")
	err := f.mgr.SendGeneralCommand(context.Background(), sid, core.GeneralCommand{
		Name:      "DisplayMessage",
		Arguments: map[string]string{"Text": "hello"},
	})
	require.NoError(t, err)

	env := readEnvelope(t, conn)
	assert.Equal(t, "GeneralCommand", env.MessageType)
	var cmd core.GeneralCommand
	require.NoError(t, json.Unmarshal(env.Data, &cmd))
	assert.Equal(t, "DisplayMessage", cmd.Name)
	assert.Equal(t, "hello", cmd.Arguments["Text"])
}

func TestHandlePush_KeepAliveIsAnsweredAndRefreshesActivity(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	conn := f.dial(t, "client=web&deviceId=dev-1")
	readEnvelope(t, conn)

	ctrl, ok := f.mgr.Registry.Lookup(domain.SessionIDFor("web", "dev-1"))
	require.True(t, ok)
	pc := ctrl.Connections()[0]
	before := pc.LastActivity()

	f.clock.Advance(10 * time.Second)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"MessageType":"KeepAlive"}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, "KeepAlive", env.MessageType)
	assert.Equal(t, before.Add(10*time.Second), pc.LastActivity())
}

func TestHandlePush_InboundRateLimited(t *testing.T) {
	opts := DefaultOptions()
	opts.RateLimit = 1
	opts.RateInterval = time.Minute
	f := newFixture(t, opts)
	conn := f.dial(t, "client=web&deviceId=dev-1")
	readEnvelope(t, conn)

	keepAlive := []byte(`{"MessageType":"KeepAlive"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, keepAlive))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, keepAlive))

	assert.Equal(t, "KeepAlive", readEnvelope(t, conn).MessageType)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.m.InboundDropped) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandlePush_ClientCloseEndsSession(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	conn := f.dial(t, "client=web&deviceId=dev-1")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool {
		return len(f.mgr.Sessions()) == 0 &&
			testutil.ToFloat64(f.m.SessionsEnded) == 1 &&
			testutil.ToFloat64(f.m.ActiveConnections) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// rawPair returns the server side of a fresh socket.
func rawPair(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case ws := <-accepted:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no server socket")
		return nil
	}
}

func TestPushConn_CloseNotifiesObserversOnce(t *testing.T) {
	pc := NewPushConn(rawPair(t), clockwork.NewFakeClock(), 4)

	calls := 0
	pc.OnClosed(func() { calls++ })
	cancelled := 0
	cancel := pc.OnClosed(func() { cancelled++ })
	cancel()

	pc.Close()
	pc.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, cancelled)
	assert.Equal(t, core.StateClosed, pc.State())

	late := false
	pc.OnClosed(func() { late = true })
	assert.True(t, late)
}

func TestPushConn_SendAfterCloseFails(t *testing.T) {
	pc := NewPushConn(rawPair(t), clockwork.NewFakeClock(), 4)
	pc.Close()

	err := pc.Send(context.Background(), core.NewEnvelope(core.MsgKeepAlive, nil))
	assert.ErrorIs(t, err, core.ErrNotOpen)
}

func TestPushConn_FullQueueHonoursContext(t *testing.T) {
	pc := NewPushConn(rawPair(t), clockwork.NewFakeClock(), 1)
	t.Cleanup(pc.Close)

	require.NoError(t, pc.Send(context.Background(), core.NewEnvelope(core.MsgKeepAlive, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pc.Send(ctx, core.NewEnvelope(core.MsgKeepAlive, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
