package signal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/pushd/internal/app"
	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/dkeye/pushd/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Options tune the push socket.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	KeepAlive    time.Duration
	RateLimit    int
	RateInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    5 * time.Second,
		SendBuffer:   32,
		KeepAlive:    60 * time.Second,
		RateLimit:    20,
		RateInterval: 10 * time.Second,
	}
}

type PushWSController struct {
	Manager *app.Manager
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
	Opts    Options

	limiter *RateLimiter
}

func NewPushWSController(mgr *app.Manager, m *metrics.Metrics, clock clockwork.Clock, opts Options) *PushWSController {
	if m == nil {
		m = metrics.NewNoop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PushWSController{
		Manager: mgr,
		Metrics: m,
		Clock:   clock,
		Opts:    opts,
		limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval, clock),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type pushQuery struct {
	Client             string `form:"client" binding:"required,max=64"`
	Version            string `form:"version" binding:"max=32"`
	DeviceID           string `form:"deviceId" binding:"max=128"`
	DeviceName         string `form:"deviceName"`
	UserID             string `form:"userId"`
	UserName           string `form:"userName"`
	PlayableMediaTypes string `form:"playableMediaTypes"`
	SupportedCommands  string `form:"supportedCommands"`
}

// declaration builds the session declaration from the query string. The
// device id falls back to the client token kept in the cookie session.
func declaration(c *gin.Context) (domain.SessionDeclaration, error) {
	var q pushQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return domain.SessionDeclaration{}, err
	}
	user, err := domain.NewUser(q.UserID, q.UserName)
	if err != nil {
		return domain.SessionDeclaration{}, err
	}
	device := q.DeviceID
	if device == "" {
		device = c.GetString("client_token")
	}
	return domain.SessionDeclaration{
		Client:             q.Client,
		ApplicationVersion: q.Version,
		DeviceID:           device,
		DeviceName:         q.DeviceName,
		User:               user,
		PlayableMediaTypes: splitList(q.PlayableMediaTypes),
		SupportedCommands:  splitList(q.SupportedCommands),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// HandlePush upgrades the request to a push socket and binds it to the
// declared session. ctx is the server lifetime.
func (ctl *PushWSController) HandlePush(ctx context.Context, c *gin.Context) {
	decl, err := declaration(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := domain.NewSession(decl)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewPushConn(ws, ctl.Clock, ctl.Opts.SendBuffer)
	log.Info().
		Str("module", "signal").
		Str("sid", string(sess.ID)).
		Str("conn", string(conn.ID())).
		Str("client", sess.Client).
		Str("version", sess.ApplicationVersion).
		Msg("new push connection")

	ctl.Metrics.ActiveConnections.Inc()
	conn.OnClosed(ctl.Metrics.ActiveConnections.Dec)

	ctl.Manager.Connect(sess, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess.ID, conn)

	ctl.forceKeepAlive(ctx, conn)
}

// forceKeepAlive tells the client how often it must send KeepAlive.
func (ctl *PushWSController) forceKeepAlive(ctx context.Context, conn *PushConn) {
	ctx, cancel := context.WithTimeout(ctx, ctl.Opts.WriteWait)
	defer cancel()
	secs := int(ctl.Opts.KeepAlive / time.Second)
	if err := conn.Send(ctx, core.NewEnvelope(core.MsgForceKeepAlive, secs)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(conn.ID())).Msg("force keep alive")
	}
}
