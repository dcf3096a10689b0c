package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stark3693/stakepoll/internal/server"
	"github.com/stark3693/stakepoll/internal/server/handler"
	"github.com/stark3693/stakepoll/internal/server/ws"
	"github.com/stark3693/stakepoll/internal/settle"
)

// ServerMode runs only the HTTP + WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the settlement sweeper. Useful for running the sweeper
// as a separate deployment next to a fleet of server replicas.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startSweeper(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the HTTP API and the settlement sweeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startSweeper(ctx, g, deps); err != nil {
		return err
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	pingers := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(pingers, a.logger),
		Polls:  handler.NewPollHandler(deps.Engine, a.logger),
		Stakes: handler.NewStakeHandler(deps.Engine, a.logger),
		Claims: handler.NewClaimHandler(deps.Engine, a.logger),
		Audit:  handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthEnabled: a.cfg.Server.AuthEnabled,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSweeper adds the settlement sweeper goroutine to the given errgroup.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	sweeper, err := settle.New(settle.Deps{
		Polls:    deps.PollStore,
		Audit:    deps.AuditStore,
		Archiver: deps.Archiver,
		Bus:      deps.SignalBus,
	}, settle.Config{
		Interval:    a.cfg.Sweep.Interval.Duration,
		GracePeriod: a.cfg.Engine.GracePeriod.Duration,
	}, a.logger)
	if err != nil {
		return err
	}

	if deps.Archiver == nil {
		a.logger.Info("settlement archive disabled; polls close without a cold-storage snapshot",
			slog.Bool("s3_enabled", a.cfg.S3.Enabled),
		)
	}

	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	return nil
}
