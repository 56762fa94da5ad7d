package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	InstantAutoCreate bool
	ICEServers        []webrtc.ICEServer
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = o.PingPeriod * 10 / 9
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// SignalWSController turns websocket connections into joined ConnSessions
// and feeds their inbound frames to the router.
type SignalWSController struct {
	Orch      *orch.Orchestrator
	Directory core.SessionDirectory
	Limiter   *RateLimiter
	Opts      Options
}

func NewSignalWSController(o *orch.Orchestrator, dir core.SessionDirectory, limiter *RateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:      o,
		Directory: dir,
		Limiter:   limiter,
		Opts:      opts.withDefaults(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authorizes caller for target and, on success, upgrades the
// request. A returned error means nothing was upgraded and the caller
// still owns the HTTP response.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, caller *domain.User, target Target) error {
	sess := core.NewConnSession(core.NewConnID())
	if err := sess.BeginAuthorize(); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("cid", string(sess.ID())).Str("target", target.String()).Msg("new WS connection")

	scope, role, err := ctl.authorize(c.Request.Context(), caller, target)
	if err != nil {
		sess.Close()
		log.Info().Err(err).Str("module", "signal").Str("cid", string(sess.ID())).Str("target", target.String()).Msg("authorization failed")
		return err
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sess.Close()
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return nil
	}
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Opts.SendBuffer),
	}

	meta := domain.NewMember(*caller, role, scope.RoomKey(), time.Now().UTC())
	if err := sess.Join(meta, scope, conn); err != nil {
		conn.Close()
		log.Error().Err(err).Str("module", "signal").Str("cid", string(sess.ID())).Msg("join session")
		return nil
	}

	// room-joined is queued before peers can see the connection, so it is
	// always the first frame the client reads.
	ctl.welcome(sess)
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Join(ctx, sess, cancel); err != nil {
		cancel()
		sess.Close()
		log.Error().Err(err).Str("module", "signal").Str("cid", string(sess.ID())).Msg("join room")
		return nil
	}

	go ctl.writePump(ctx, sess, conn)
	go ctl.readPump(ctx, sess, conn)
	return nil
}
