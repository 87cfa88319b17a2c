package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/worktimer-go/config"
	"github.com/soocke/worktimer-go/debug"
)

const (
	shutdownTimeout = 5 * time.Second
	debugInterval   = 10 * time.Second
)

// App runs the coordinator's background loops until its context ends.
type App struct {
	c       *Container
	cfgPath string
	logger  *slog.Logger
}

// NewApp builds the container. cfgPath enables hot reload when non-empty.
func NewApp(cfg *config.Config, logger *slog.Logger, cfgPath string, deps Deps) (*App, error) {
	c, err := BuildContainer(cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	return &App{c: c, cfgPath: cfgPath, logger: logger}, nil
}

func (a *App) Container() *Container { return a.c }

// Run starts the publisher, idle detector, host bridge, config watcher and,
// in debug mode, the metrics loggers. When any of them fails or ctx ends the
// rest are cancelled, the capture loop is stopped and awaited, and handles
// are closed.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.c.Publisher.Run(gctx) })
	if a.c.InputAvailable {
		g.Go(func() error { return a.c.Detector.Run(gctx) })
	}
	g.Go(func() error { return a.c.Bridge.Run(gctx) })
	if a.cfgPath != "" {
		w := config.NewWatcher(a.logger.With("component", "config"), a.cfgPath, func(next *config.Config) {
			applyCtx, cancel := context.WithTimeout(gctx, time.Second)
			defer cancel()
			if err := a.c.Coordinator.ApplyConfig(applyCtx, next); err != nil {
				a.logger.Warn("config reload not applied", "error", err)
			}
		})
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				// hot reload is optional
				a.logger.Warn("config watcher stopped", "error", err)
			}
			return nil
		})
	}
	if a.c.Config.Debug {
		dl := a.logger.With("component", "debug")
		g.Go(func() error { return debug.RunGoroutineLogger(gctx, debugInterval, dl, a.debugProbe) })
		g.Go(func() error { return debug.RunMemLogger(gctx, debugInterval, dl) })
	}

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	a.c.Scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.c.Scheduler.Wait(ctx); err != nil {
		a.logger.Warn("capture loop did not exit in time", "error", err)
	}
	if err := a.c.Close(); err != nil {
		a.logger.Warn("close failed", "error", err)
	}
	a.logger.Info("coordinator stopped")
}

func (a *App) debugProbe() []slog.Attr {
	cs := a.c.Scheduler.Stats()
	ps := a.c.Publisher.Stats()
	return []slog.Attr{
		slog.Int("capture_live_loops", int(cs.LiveLoops)),
		slog.Int("capture_max_live", int(a.c.Scheduler.MaxLive())),
		slog.Uint64("capture_cycles", cs.Cycles),
		slog.Uint64("capture_failures", cs.Failures),
		slog.Uint64("published", ps.Published),
		slog.Uint64("publish_failures", ps.Failures),
		slog.Int("subscribers", ps.Subscribers),
	}
}
