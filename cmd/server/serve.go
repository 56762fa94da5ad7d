package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Classroom/internal/adapters/auth"
	router "github.com/dkeye/Classroom/internal/adapters/http"
	wsignal "github.com/dkeye/Classroom/internal/adapters/signal"
	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/app/lifecycle"
	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry:   reg,
		Rooms:      app.NewRoomManager(),
		Policy:     app.ParsePolicy(cfg.Signal.Backpressure),
		Attendance: st,
	}
	limiter := wsignal.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateInterval)
	ctl := wsignal.NewSignalWSController(o, st, limiter, wsignal.Options{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		PongWait:          cfg.PongWait(),
		WriteWait:         cfg.WriteWait,
		SendBuffer:        cfg.SendBuffer,
		InstantAutoCreate: cfg.Signal.InstantAutoCreate,
		ICEServers:        cfg.WebRTCICEServers(),
	})

	r := router.SetupRouter(ctx, router.Deps{
		Config: cfg,
		Orch:   o,
		Lifecycle: &lifecycle.Manager{
			Directory:    st,
			Attendance:   st,
			Signals:      o,
			ArtifactBase: cfg.Recording.ArtifactBase,
		},
		Signal:   ctl,
		Identity: auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepLimiter(ctx, limiter, reg, cfg.Signal.RateInterval)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("Classroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	n := reg.CloseAll()
	log.Info().Int("connections", n).Msg("Server exited gracefully")
	return nil
}

func sweepLimiter(ctx context.Context, rl *wsignal.RateLimiter, reg *app.Registry, every time.Duration) {
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := rl.Sweep()
			log.Debug().Str("module", "signal").Int("users", n).Int("connections", reg.Len()).Msg("rate limiter swept")
		}
	}
}
