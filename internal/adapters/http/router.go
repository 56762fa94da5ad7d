package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/adapters/signal"
	"github.com/dkeye/Classroom/internal/app/lifecycle"
	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/config"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const sessionCookie = "ClassroomSessions"

type Deps struct {
	Config    *config.Config
	Orch      *orch.Orchestrator
	Lifecycle *lifecycle.Manager
	Signal    *signal.SignalWSController
	Identity  core.IdentityProvider
}

func SetupRouter(ctx context.Context, d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 12, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionCookie, store))
	r.Use(IdentityMiddleware(d.Identity))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ws := r.Group("/ws/video")
	ws.GET("/regular/:session", func(c *gin.Context) {
		handleWS(ctx, c, d.Signal, signal.Target{Kind: domain.KindRegular, SessionID: c.Param("session")})
	})
	ws.GET("/regular/:session/breakout/:breakout", func(c *gin.Context) {
		handleWS(ctx, c, d.Signal, signal.Target{Kind: domain.KindRegular, SessionID: c.Param("session"), BreakoutID: c.Param("breakout")})
	})
	ws.GET("/instant/:session", func(c *gin.Context) {
		handleWS(ctx, c, d.Signal, signal.Target{Kind: domain.KindInstant, SessionID: c.Param("session")})
	})

	api := r.Group("/api")
	api.POST("/auth/session", loginHandler(d.Identity))
	api.DELETE("/auth/session", logoutHandler)

	admin := &adminHandlers{orch: d.Orch, lifecycle: d.Lifecycle}
	authed := api.Group("", RequireCaller())
	authed.GET("/rooms", admin.listRooms)
	authed.POST("/instant", admin.createInstant)
	authed.POST("/recordings/:recording/stop", admin.stopRecording)

	sess := authed.Group("/sessions/:kind/:session")
	sess.POST("/breakouts", admin.createBreakout)
	sess.DELETE("/breakouts/:breakout", admin.closeBreakout)
	sess.POST("/breakouts/:breakout/assignments", admin.assignParticipant)
	sess.POST("/recordings", admin.startRecording)
	sess.GET("/attendance", admin.listAttendance)

	return r
}

func handleWS(ctx context.Context, c *gin.Context, ctl *signal.SignalWSController, target signal.Target) {
	log.Debug().Str("module", "adapters.http").Str("target", target.String()).Msg("ws signal endpoint hit")
	if err := ctl.HandleSignal(ctx, c, callerOf(c), target); err != nil {
		writeError(c, err)
	}
}
