package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soocke/worktimer-go/domain/activity"
	"github.com/soocke/worktimer-go/domain/publish"
)

const DefaultPollPeriod = time.Second

// Detector polls an activity source and tracks Active, PotentiallyIdle and
// Idle. Its lock is independent of the timer's; the session and config reads
// may be slightly stale, which is fine for activity monitoring.
type Detector struct {
	src     activity.Source
	session SessionSource
	cfg     ConfigSource
	ledger  Annotator
	notify  Notifier
	now     func() time.Time
	period  time.Duration
	logger  *slog.Logger
	errLog  *rate.Limiter

	mu      sync.Mutex
	state   State
	since   time.Time
	pending *PendingDecision
	status  activity.Status
}

// Options wires optional collaborators.
type Options struct {
	Ledger     Annotator
	Notifier   Notifier
	Now        func() time.Time
	PollPeriod time.Duration
}

func NewDetector(logger *slog.Logger, src activity.Source, session SessionSource, cfg ConfigSource, opts Options) *Detector {
	d := &Detector{
		src:     src,
		session: session,
		cfg:     cfg,
		ledger:  opts.Ledger,
		notify:  opts.Notifier,
		now:     opts.Now,
		period:  opts.PollPeriod,
		logger:  logger,
		errLog:  rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.period <= 0 {
		d.period = DefaultPollPeriod
	}
	return d
}

// Run polls until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.CheckIdleStatus(ctx, d.now())
		}
	}
}

type event struct {
	name    string
	payload any
}

// CheckIdleStatus runs one poll tick at now. When detection is disabled or
// no session is running the tick reports neither activity nor idle.
func (d *Detector) CheckIdleStatus(ctx context.Context, now time.Time) {
	cfg, err := d.cfg.ActivityConfig(ctx)
	if err != nil {
		d.logTickError("read activity config", err)
		return
	}
	if !cfg.IdleEnabled || (d.session != nil && !d.session.Active(ctx)) {
		d.mu.Lock()
		// an idle spell cut short by a pause or stop still needs a decision
		ev := d.resolveLocked(now, cfg.AskIdleReason)
		d.state, d.since, d.status = StateActive, time.Time{}, activity.Status{}
		d.mu.Unlock()
		d.emit(ev)
		return
	}
	st, err := d.src.Poll(cfg.TrackKeyboard, cfg.TrackMouse)
	if err != nil {
		d.logTickError("poll input", err)
		return
	}

	var ev *event
	d.mu.Lock()
	d.status = st
	active := st.Any()
	switch d.state {
	case StateActive:
		if !active {
			d.state, d.since = StatePotentiallyIdle, now
		}
	case StatePotentiallyIdle:
		if active {
			d.state, d.since = StateActive, time.Time{}
		} else if now.Sub(d.since) >= cfg.IdleThreshold {
			d.state = StateIdle
			ev = &event{publish.EventIdle, IdleNotice{Since: d.since}}
		}
	case StateIdle:
		if active {
			ev = d.resolveLocked(now, cfg.AskIdleReason)
			d.state, d.since = StateActive, time.Time{}
		}
	}
	d.mu.Unlock()
	d.emit(ev)
}

// resolveLocked turns an Idle state into a pending decision ending at now.
func (d *Detector) resolveLocked(now time.Time, askReason bool) *event {
	if d.state != StateIdle {
		return nil
	}
	p := &PendingDecision{
		Start:     d.since,
		End:       now,
		Duration:  int64(now.Sub(d.since) / time.Second),
		AskReason: askReason,
	}
	d.pending = p
	return &event{publish.EventIdleResolved, *p}
}

func (d *Detector) emit(ev *event) {
	if ev == nil {
		return
	}
	if d.logger != nil {
		d.logger.Info("idle state changed", "event", ev.name)
	}
	if d.notify != nil {
		d.notify.Emit(ev.name, ev.payload)
	}
}

// HandleIdleDecision resolves the pending idle interval. Discarding it
// annotates the current time entry; keeping it leaves the entry untouched.
// A decision made while still idle closes the interval at now.
func (d *Detector) HandleIdleDecision(keep bool, reason *string) error {
	now := d.now()
	d.mu.Lock()
	p := d.pending
	d.pending = nil
	if p == nil && d.state == StateIdle {
		p = &PendingDecision{Start: d.since, End: now, Duration: int64(now.Sub(d.since) / time.Second)}
		d.state, d.since = StateActive, time.Time{}
	}
	d.mu.Unlock()

	if p == nil {
		return nil
	}
	if d.logger != nil {
		d.logger.Info("idle decision", "keep", keep, "duration_s", p.Duration)
	}
	if keep || d.ledger == nil {
		return nil
	}
	return d.ledger.AnnotateIdle(p.Start, p.End, reason)
}

// IsUserIdle reports whether the detector is in the Idle state.
func (d *Detector) IsUserIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateIdle
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) IdleState() IdleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle {
		return IdleState{}
	}
	since := d.since
	return IdleState{IsIdle: true, IdleSince: &since}
}

// ActivityStatus returns the result of the most recent poll.
func (d *Detector) ActivityStatus() activity.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Pending returns the unresolved idle interval, if any.
func (d *Detector) Pending() (PendingDecision, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return PendingDecision{}, false
	}
	return *d.pending, true
}

func (d *Detector) logTickError(msg string, err error) {
	if d.logger != nil && d.errLog.Allow() {
		d.logger.Warn("idle tick skipped", "step", msg, "error", err)
	}
}
