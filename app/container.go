package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/soocke/worktimer-go/catalog"
	"github.com/soocke/worktimer-go/config"
	"github.com/soocke/worktimer-go/domain/activity"
	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/idle"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
	"github.com/soocke/worktimer-go/storage"
	"github.com/soocke/worktimer-go/ui/bridge"
)

// Deps overrides platform collaborators; zero fields use the real ones.
type Deps struct {
	Displays capture.Displays
	Input    activity.Source
	Now      func() time.Time
}

// Container assembles the domain services, storage and the host bridge.
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Machine     *timer.Machine
	Scheduler   *capture.Scheduler
	Capture     *capture.Service
	Ledger      *ledger.Ledger
	Publisher   *publish.Publisher
	Detector    *idle.Detector
	Coordinator *Coordinator
	Catalog     *catalog.Client
	Bridge      *bridge.Server
	DB          *storage.DB
	Captures    *storage.Repository

	// InputAvailable is false when no activity source could be opened; the
	// detector is then never polled.
	InputAvailable bool

	closers []io.Closer
}

// BuildContainer constructs all components. Side effects are limited to
// opening the capture archive and the platform input source.
func BuildContainer(cfg *config.Config, logger *slog.Logger, deps Deps) (*Container, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	c := &Container{Config: cfg, Logger: logger}
	c.Ledger = ledger.New(logger.With("component", "ledger"), now)

	var archive capture.Archive
	if db, err := storage.Connect(cfg.DatabasePath); err != nil {
		logger.Warn("capture archive disabled", "error", err)
	} else if err := db.Initialize(); err != nil {
		_ = db.Close()
		logger.Warn("capture archive disabled", "error", err)
	} else {
		c.DB = db
		c.closers = append(c.closers, db)
		c.Captures = storage.NewRepository(db)
		archive = storage.NewArchive(c.Captures, c.currentEntryID)
		c.pruneArchive(now(), cfg.ArchiveRetention())
	}

	displays := deps.Displays
	if displays == nil {
		displays = capture.NewPlatformDisplays(logger.With("component", "displays"))
	}
	c.Capture = capture.NewService(logger.With("component", "capture"), displays, archive, cfg.CaptureSettings())
	c.Scheduler = capture.NewScheduler(logger.With("component", "scheduler"), c.Capture, capture.SchedulerOptions{})

	c.Machine = timer.NewMachine(logger.With("component", "timer"), cfg.Activity(), c.Scheduler, nil, timer.WithClock(now))
	c.Publisher = publish.NewPublisher(logger.With("component", "publisher"), c.Machine, nil, cfg.PublishInterval())
	c.Machine.SetSink(c.Publisher)
	timerLog := logger.With("component", "session")
	c.Machine.AddListener(func(prev, next timer.Phase) {
		timerLog.Info("timer phase changed", "from", prev.String(), "to", next.String(), "entry", c.currentEntryID())
	})

	src := deps.Input
	if src == nil {
		var closers []io.Closer
		var err error
		src, closers, err = platformInput()
		if err != nil {
			logger.Warn("activity input unavailable; idle detection off", "error", err)
		}
		c.closers = append(c.closers, closers...)
	}
	c.InputAvailable = src != nil
	if src == nil {
		src = unavailableInput{}
	}
	c.Detector = idle.NewDetector(logger.With("component", "idle"), src, c.Machine, c.Machine, idle.Options{
		Ledger:     c.Ledger,
		Notifier:   c.Publisher,
		Now:        now,
		PollPeriod: cfg.IdlePollInterval(),
	})

	c.Coordinator = NewCoordinator(logger.With("component", "coordinator"), c.Machine, c.Ledger, c.Detector, c.Capture, c.Publisher)
	c.Coordinator.now = now

	client, err := catalog.NewClient(logger.With("component", "catalog"), cfg.CatalogURL, nil)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Catalog = client
	c.Bridge = bridge.NewServer(logger.With("component", "bridge"), cfg.BridgeAddr, c.Coordinator, c.Detector)
	c.Bridge.SetCatalog(client)
	return c, nil
}

// pruneArchive drops capture records older than retention. Image files on
// disk are left alone.
func (c *Container) pruneArchive(now time.Time, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := c.Captures.DeleteBefore(ctx, now.Add(-retention))
	if err != nil {
		c.Logger.Warn("prune capture archive", "error", err)
		return
	}
	if n > 0 {
		c.Logger.Info("pruned capture archive", "removed", n, "retention", retention)
	}
}

func (c *Container) currentEntryID() string {
	if e, ok := c.Ledger.Current(); ok {
		return e.ID
	}
	return ""
}

// Close releases the archive and input handles.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// platformInput prefers raw device polling and falls back to the GNOME
// compositor's idle clock, which also works under Wayland.
func platformInput() (activity.Source, []io.Closer, error) {
	prim, perr := activity.NewPlatform()
	if perr == nil {
		var closers []io.Closer
		if cl, ok := prim.(io.Closer); ok {
			closers = append(closers, cl)
		}
		return activity.NewDeviceMonitor(prim), closers, nil
	}
	clock, cerr := activity.NewMutterIdleClock()
	if cerr == nil {
		return activity.NewIdleClockSource(clock, nil), []io.Closer{clock}, nil
	}
	return nil, nil, errors.Join(perr, cerr)
}

type unavailableInput struct{}

func (unavailableInput) Poll(bool, bool) (activity.Status, error) {
	return activity.Status{}, activity.ErrUnsupported
}
