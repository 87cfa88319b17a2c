package timer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Machine owns the session state and drives the capture scheduler from it.
// All state access goes through a weighted semaphore of size one so that
// acquisition can be abandoned via context. Scheduler calls, the terminal
// publish and listeners run only after the semaphore is released.
type Machine struct {
	sem    *semaphore.Weighted
	state  TimerState
	cfg    ActivityConfig
	now    func() time.Time
	logger *slog.Logger

	capture CaptureController
	// want is written under sem. Scheduler calls are made by whichever
	// caller raised pending from zero; it keeps draining until pending falls
	// back to zero, so the last call always reflects the newest request.
	wantMu  sync.Mutex
	want    captureRequest
	pending atomic.Int32
	applied uint64

	hooksMu   sync.RWMutex
	sink      SnapshotSink
	listeners []Listener
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock replaces time.Now, mainly for tests driving a simulated clock.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine constructs an idle machine. capture and sink may be nil.
func NewMachine(logger *slog.Logger, cfg ActivityConfig, capture CaptureController, sink SnapshotSink, opts ...Option) *Machine {
	m := &Machine{
		sem:     semaphore.NewWeighted(1),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		capture: capture,
		sink:    sink,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetSink installs the receiver of immediate snapshots. The publisher is
// usually built after the machine, hence the setter.
func (m *Machine) SetSink(s SnapshotSink) {
	m.hooksMu.Lock()
	m.sink = s
	m.hooksMu.Unlock()
}

// AddListener registers a phase-change callback.
func (m *Machine) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.hooksMu.Lock()
	m.listeners = append(m.listeners, l)
	m.hooksMu.Unlock()
}

type captureRequest struct {
	gen     uint64
	start   bool
	enabled bool
	hint    time.Duration
}

// followUp is decided under the lock and executed after release.
type followUp struct {
	syncCapture  bool
	final        *TimerResponse
	stoppedAfter time.Duration
	prev, next   Phase
}

func (m *Machine) withLock(ctx context.Context, op string, fn func()) (err error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return &LockError{Op: op, Cause: err}
	}
	// runs after Release so the log write happens outside the lock
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("timer panic while holding state lock", "op", op, "error", r, "stack", string(debug.Stack()))
			}
			err = &LockError{Op: op, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	defer m.sem.Release(1)
	fn()
	return nil
}

// Control applies one command. Commands whose guard fails are silent no-ops;
// the only error is *LockError.
func (m *Machine) Control(ctx context.Context, cmd Command) error {
	var fu followUp
	err := m.withLock(ctx, cmd.Kind.String(), func() {
		fu = m.apply(cmd, m.now())
	})
	if err != nil {
		return err
	}
	m.perform(fu)
	return nil
}

func (m *Machine) apply(cmd Command, now time.Time) followUp {
	s := &m.state
	fu := followUp{prev: s.Phase()}
	switch cmd.Kind {
	case CmdStart:
		if s.Running || s.Elapsed != 0 {
			break
		}
		wall := now.Round(0)
		s.Running = true
		s.StartInstant = now
		s.StartDateTime = &wall
		s.EndDateTime = nil
		s.Elapsed = 0
		m.requestCapture(&fu, true)
	case CmdPause:
		if !s.Running {
			break
		}
		s.Elapsed += segment(s.StartInstant, now)
		s.Running = false
		s.StartInstant = time.Time{}
		m.requestCapture(&fu, false)
	case CmdResume:
		if s.Running || s.Elapsed <= 0 {
			break
		}
		s.Running = true
		s.StartInstant = now
		m.requestCapture(&fu, true)
	case CmdStop:
		if s.Running {
			s.Elapsed += segment(s.StartInstant, now)
			m.requestCapture(&fu, false)
		}
		end := now.Round(0)
		fu.stoppedAfter = s.Elapsed
		s.EndDateTime = &end
		s.Running = false
		s.StartInstant = time.Time{}
		s.Elapsed = 0
		s.StartDateTime = nil
		final := TimerResponse{EndTime: &end}
		fu.final = &final
	case CmdAddTime:
		if s.Running || s.Elapsed <= 0 {
			break
		}
		s.Elapsed = addSeconds(s.Elapsed, cmd.Seconds)
	}
	fu.next = s.Phase()
	return fu
}

func (m *Machine) requestCapture(fu *followUp, start bool) {
	m.wantMu.Lock()
	m.want = captureRequest{
		gen:     m.want.gen + 1,
		start:   start,
		enabled: m.cfg.CaptureEnabled,
		hint:    m.cfg.CaptureIntervalHint,
	}
	m.wantMu.Unlock()
	fu.syncCapture = true
}

// applyCapture drives the scheduler until it has seen the newest request.
// Requests superseded before their turn are skipped, and a caller arriving
// while another drains returns at once.
func (m *Machine) applyCapture() {
	if m.pending.Add(1) != 1 {
		return
	}
	for {
		m.wantMu.Lock()
		req := m.want
		m.wantMu.Unlock()
		if req.gen > m.applied {
			m.callCapture(req)
			m.applied = req.gen
		}
		if m.pending.Add(-1) == 0 {
			return
		}
	}
}

// callCapture recovers so a panicking controller cannot wedge pending.
func (m *Machine) callCapture(req captureRequest) {
	defer recoverLog(m.logger, "capture controller panic")
	if req.start {
		m.capture.Start(req.enabled, req.hint)
	} else {
		m.capture.Stop()
	}
}

func (m *Machine) perform(fu followUp) {
	if fu.syncCapture && m.capture != nil {
		m.applyCapture()
	}

	m.hooksMu.RLock()
	sink := m.sink
	listeners := append([]Listener(nil), m.listeners...)
	m.hooksMu.RUnlock()

	if fu.final != nil {
		if m.logger != nil {
			m.logger.Info("session stopped", "elapsed", fu.stoppedAfter)
		}
		if sink != nil {
			sink.Publish(*fu.final)
		}
	}
	if fu.prev == fu.next {
		return
	}
	if m.logger != nil {
		m.logger.Debug("timer transition", "from", fu.prev.String(), "to", fu.next.String())
	}
	for _, l := range listeners {
		func() {
			defer recoverLog(m.logger, "timer listener panic")
			l(fu.prev, fu.next)
		}()
	}
}

// Snapshot returns the current state with the in-flight segment folded into
// the elapsed seconds.
func (m *Machine) Snapshot(ctx context.Context) (TimerResponse, error) {
	var resp TimerResponse
	err := m.withLock(ctx, "snapshot", func() {
		s := m.state
		total := s.Elapsed
		if s.Running {
			total += segment(s.StartInstant, m.now())
		}
		resp = TimerResponse{
			ElapsedSeconds: uint64(total / time.Second),
			Running:        s.Running,
			StartTime:      copyTime(s.StartDateTime),
			EndTime:        copyTime(s.EndDateTime),
		}
	})
	return resp, err
}

// State returns a copy of the raw state.
func (m *Machine) State(ctx context.Context) (TimerState, error) {
	var st TimerState
	err := m.withLock(ctx, "state", func() {
		st = m.state
		st.StartDateTime = copyTime(m.state.StartDateTime)
		st.EndDateTime = copyTime(m.state.EndDateTime)
	})
	return st, err
}

// Active reports whether a segment is currently running. Lock failures read
// as inactive.
func (m *Machine) Active(ctx context.Context) bool {
	var running bool
	if err := m.withLock(ctx, "active", func() { running = m.state.Running }); err != nil {
		return false
	}
	return running
}

// ActivityConfig returns a copy of the current activity configuration.
func (m *Machine) ActivityConfig(ctx context.Context) (ActivityConfig, error) {
	var cfg ActivityConfig
	err := m.withLock(ctx, "get_config", func() { cfg = m.cfg })
	return cfg, err
}

// ReplaceActivityConfig swaps the configuration as a whole. A running
// scheduler is restarted when the capture settings changed.
func (m *Machine) ReplaceActivityConfig(ctx context.Context, cfg ActivityConfig) error {
	var fu followUp
	err := m.withLock(ctx, "replace_config", func() {
		prev := m.cfg
		m.cfg = cfg
		fu.prev = m.state.Phase()
		fu.next = fu.prev
		if m.state.Running && (prev.CaptureEnabled != cfg.CaptureEnabled || prev.CaptureIntervalHint != cfg.CaptureIntervalHint) {
			m.requestCapture(&fu, true)
		}
	})
	if err != nil {
		return err
	}
	m.perform(fu)
	return nil
}

func segment(start, now time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func addSeconds(d time.Duration, seconds uint64) time.Duration {
	const maxSeconds = uint64(math.MaxInt64 / int64(time.Second))
	if seconds > maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	add := time.Duration(seconds) * time.Second
	if d > time.Duration(math.MaxInt64)-add {
		return time.Duration(math.MaxInt64)
	}
	return d + add
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error(msg, "error", r)
		}
	}
}
