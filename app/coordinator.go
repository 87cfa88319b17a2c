package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soocke/worktimer-go/config"
	"github.com/soocke/worktimer-go/domain/capture"
	"github.com/soocke/worktimer-go/domain/idle"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
	"github.com/soocke/worktimer-go/ui/bridge"
)

// Coordinator is the command surface of the process: raw timer commands,
// session helpers pairing the timer with the ledger, idle decisions,
// one-shot capture and configuration replacement.
type Coordinator struct {
	machine   *timer.Machine
	ledger    *ledger.Ledger
	detector  *idle.Detector
	capture   *capture.Service
	publisher *publish.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewCoordinator(logger *slog.Logger, m *timer.Machine, l *ledger.Ledger, d *idle.Detector, svc *capture.Service, p *publish.Publisher) *Coordinator {
	return &Coordinator{machine: m, ledger: l, detector: d, capture: svc, publisher: p, logger: logger, now: time.Now}
}

func (c *Coordinator) Control(ctx context.Context, cmd timer.Command) error {
	return c.machine.Control(ctx, cmd)
}

func (c *Coordinator) Snapshot(ctx context.Context) (timer.TimerResponse, error) {
	return c.machine.Snapshot(ctx)
}

// StartSession opens a time entry and starts the timer. A timer left paused
// by raw commands is reset first so the entry and the timer begin together.
// If the timer cannot be started the entry is closed again.
func (c *Coordinator) StartSession(ctx context.Context, projectID, taskID string) (ledger.TimeEntry, error) {
	entry, err := c.ledger.Start(projectID, taskID)
	if err != nil {
		return ledger.TimeEntry{}, err
	}
	st, err := c.machine.State(ctx)
	if err == nil && st.Phase() != timer.PhaseIdle {
		err = c.machine.Control(ctx, timer.Stop())
	}
	if err == nil {
		err = c.machine.Control(ctx, timer.Start())
	}
	if err != nil {
		if _, stopErr := c.ledger.Stop(); stopErr != nil && c.logger != nil {
			c.logger.Warn("rollback of time entry failed", "id", entry.ID, "error", stopErr)
		}
		return ledger.TimeEntry{}, err
	}
	return entry, nil
}

// StopSession stops the timer and closes the current entry. The entry stays
// open when the timer could not be stopped so the call can be retried.
func (c *Coordinator) StopSession(ctx context.Context) (ledger.TimeEntry, error) {
	if !c.ledger.Tracking() {
		return ledger.TimeEntry{}, ledger.ErrNotTracking
	}
	if err := c.machine.Control(ctx, timer.Stop()); err != nil {
		return ledger.TimeEntry{}, err
	}
	return c.ledger.Stop()
}

// CurrentEntry returns the open time entry, if any.
func (c *Coordinator) CurrentEntry() (ledger.TimeEntry, bool) { return c.ledger.Current() }

// HandleIdleDecision resolves a pending idle interval. Without an open entry
// there is nothing to annotate and the decision is simply dropped.
func (c *Coordinator) HandleIdleDecision(keep bool, reason *string) error {
	err := c.detector.HandleIdleDecision(keep, reason)
	switch {
	case errors.Is(err, ledger.ErrNotTracking):
		if c.logger != nil {
			c.logger.Info("idle decision without time entry ignored", "keep", keep)
		}
		return nil
	case errors.Is(err, ledger.ErrIdleBeforeEntry):
		if c.logger != nil {
			c.logger.Info("idle decision for an earlier time entry ignored", "keep", keep)
		}
		return nil
	}
	return err
}

func (c *Coordinator) CheckIdleStatus(ctx context.Context) {
	c.detector.CheckIdleStatus(ctx, c.now())
}

func (c *Coordinator) IsUserIdle() bool { return c.detector.IsUserIdle() }

func (c *Coordinator) CaptureNow(ctx context.Context) ([]capture.CapturedImage, error) {
	return c.capture.CaptureNow(ctx)
}

func (c *Coordinator) Subscribe() (<-chan publish.Update, func()) {
	return c.publisher.Subscribe()
}

// ApplyConfig replaces the activity configuration and the capture settings
// as a whole. Used by the config file watcher.
func (c *Coordinator) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	if err := c.machine.ReplaceActivityConfig(ctx, cfg.Activity()); err != nil {
		return err
	}
	c.capture.ReplaceSettings(cfg.CaptureSettings())
	if c.logger != nil {
		c.logger.Info("configuration applied", "capture_mode", cfg.CaptureMode, "idle_threshold_s", cfg.IdleThresholdSeconds)
	}
	return nil
}

var _ bridge.Controller = (*Coordinator)(nil)
