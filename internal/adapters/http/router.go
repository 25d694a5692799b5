package http

import (
	"context"
	"net/http"

	"github.com/dkeye/pushd/internal/adapters/signal"
	"github.com/dkeye/pushd/internal/app"
	"github.com/dkeye/pushd/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

const (
	sessionCookie  = "PushSessions"
	clientTokenKey = "client_token"
)

// ClientTokenMiddleware keeps a stable per-browser token in the cookie
// session. The push endpoint uses it as device id when the client sends
// none. Must run after sessions.Sessions.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, mgr *app.Manager, push *signal.PushWSController, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookie, store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(mgr.Sessions())})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/push", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString(clientTokenKey)).Msg("ws push endpoint hit")
		push.HandlePush(ctx, c)
	})

	h := &Handlers{Manager: mgr}

	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/playing", h.Play)
	api.POST("/sessions/:id/playing/:command", h.Playstate)
	api.POST("/sessions/:id/command", h.GeneralCommand)
	api.POST("/sessions/:id/playback/start", h.PlaybackStart)
	api.POST("/sessions/:id/playback/stopped", h.PlaybackStopped)

	api.POST("/notifications/library", h.LibraryChanged)
	api.POST("/notifications/userdata", h.UserDataChanged)
	api.POST("/system/restart-required", h.RestartRequired)

	return r
}
