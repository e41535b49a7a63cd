package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miko-labs/futurify/internal/notify"
	"github.com/miko-labs/futurify/internal/pipeline"
	"github.com/miko-labs/futurify/internal/server"
	"github.com/miko-labs/futurify/internal/server/handler"
	"github.com/miko-labs/futurify/internal/server/ws"
)

// ServeMode starts the HTTP/WebSocket API, the event fan-out, and the
// notification listener. No archival runs in this mode.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEventConsumers(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs only the closed-market archival sweep loop. It needs the
// Postgres mirror and object storage, but no API surface.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if !a.cfg.Archive.Enabled {
		a.logger.WarnContext(ctx, "archive.enabled is false, but archive mode always runs the sweep loop")
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startArchiver(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	return g.Wait()
}

// FullMode starts every subsystem: the API, event consumers, and — when
// enabled — the archival loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEventConsumers(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	if a.cfg.Archive.Enabled {
		if err := a.startArchiver(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	return g.Wait()
}

// startHTTPServer adds the API server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if a.cfg.Server.RateLimit > 0 {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.Server.RateLimit
		srvCfg.RateLimitWindow = a.cfg.Server.RateLimitWindow.Duration
	}

	srv := server.NewServer(srvCfg, server.Handlers{
		Health:      handler.NewHealthHandler(),
		Predictions: handler.NewPredictionHandler(deps.Engine, deps.PredictionCache, a.logger),
		Accounts:    handler.NewAccountHandler(deps.Engine, a.logger),
		Decrypt:     handler.NewDecryptHandler(deps.Gateway, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// startEventConsumers adds the notification listener when at least one sender
// is configured.
func (a *App) startEventConsumers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !deps.NotifyEnabled {
		a.logger.InfoContext(ctx, "no notification senders configured, listener disabled")
		return
	}
	listener := notify.NewListener(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return listener.Run(ctx)
	})
}

// startArchiver adds the archival sweep loop to the errgroup.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.PredictionStore == nil {
		return fmt.Errorf("archiver requires the postgres prediction mirror")
	}
	if deps.BlobWriter == nil {
		return fmt.Errorf("archiver requires blob storage")
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}

	arch := pipeline.NewArchiver(
		deps.PredictionStore,
		deps.BlobWriter,
		deps.LockManager,
		a.cfg.Archive.RetentionDays,
		a.cfg.Archive.Prefix,
		a.logger,
	)

	g.Go(func() error {
		err := arch.RunLoop(ctx, interval)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	return nil
}
