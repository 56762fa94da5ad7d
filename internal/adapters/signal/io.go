package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sess *core.ConnSession, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		sess.Close()
	}()
	cid := string(sess.ID())

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", cid).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("cid", cid).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("cid", cid).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("cid", cid).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("cid", cid).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess *core.ConnSession, c *WsSignalConn) {
	cid := string(sess.ID())
	defer func() {
		log.Info().Str("module", "signal").Str("cid", cid).Msg("readPump closing")
		sess.Close()
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", cid).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("cid", cid).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(sess, data)
		}
	}
}

// handleSignal decodes one inbound frame and hands it to the router.
func (ctl *SignalWSController) handleSignal(sess *core.ConnSession, data []byte) {
	meta := sess.Meta()
	if ctl.Limiter != nil && !ctl.Limiter.Allow(meta.User.ID) {
		log.Warn().Str("module", "signal").Str("cid", string(sess.ID())).Str("uid", string(meta.User.ID)).Msg("rate limited")
		ctl.replyError(sess, errRateLimited)
		return
	}
	sig, err := decodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(sess.ID())).Msg("bad payload")
		ctl.replyError(sess, errBadPayload)
		return
	}
	ctl.Orch.Route(sess, sig)
}
