package signal

import (
	"context"
	"time"

	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *PushWSController) writePump(ctx context.Context, c *PushConn) {
	ticker := ctl.Clock.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ctx done")
			ctl.flush(c)
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump write error")
				return
			}
		case <-ticker.Chan():
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ping error")
				return
			}
		}
	}
}

// flush writes whatever is still queued, e.g. a shutdown notice.
func (ctl *PushWSController) flush(c *PushConn) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (ctl *PushWSController) readPump(ctx context.Context, sid domain.SessionID, c *PushConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("conn", string(c.ID())).Msg("readPump closing")
		c.Close()
		if _, ok := ctl.Manager.Registry.Lookup(sid); !ok {
			ctl.limiter.Forget(sid)
		}
	}()

	if ctl.Opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))

		if !ctl.limiter.Allow(sid) {
			ctl.Metrics.InboundDropped.Inc()
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("inbound rate limited")
			continue
		}
		ctl.handleMessage(ctx, sid, c, data)
	}
}

type inbound struct {
	MessageType core.MessageType `json:"MessageType"`
	Data        json.RawMessage  `json:"Data,omitempty"`
}

func (ctl *PushWSController) handleMessage(ctx context.Context, sid domain.SessionID, c *PushConn, data []byte) {
	var env inbound
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.MessageType {
	case core.MsgKeepAlive:
		ctl.handleKeepAlive(ctx, c)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.MessageType)).Msg("unknown message")
	}
}

func (ctl *PushWSController) handleKeepAlive(ctx context.Context, c *PushConn) {
	ctx, cancel := context.WithTimeout(ctx, ctl.Opts.WriteWait)
	defer cancel()
	if err := c.Send(ctx, core.NewEnvelope(core.MsgKeepAlive, nil)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("keep alive reply")
	}
}
