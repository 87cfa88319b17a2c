package capture

import (
	"context"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	minCaptureDelay   = 5 * time.Second
	maxCaptureDelayLo = 10 * time.Second
)

// Worker performs one capture pass. It should return promptly once ctx is
// cancelled but is not required to.
type Worker interface {
	CaptureCycle(ctx context.Context)
}

// SchedulerOptions overrides the delay bounds and randomness, mainly for tests.
type SchedulerOptions struct {
	MinDelay time.Duration
	MaxFloor time.Duration
	// Int64N returns a uniform value in [0, n).
	Int64N func(n int64) int64
}

// Scheduler runs at most one capture loop at a time. Start cancels the live
// loop and spawns a replacement that begins capturing only after its
// predecessor has exited. Stop cancels without waiting.
type Scheduler struct {
	worker   Worker
	logger   *slog.Logger
	minDelay time.Duration
	maxFloor time.Duration
	int64n   func(int64) int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	started atomic.Uint64
	live    atomic.Int32
	maxLive atomic.Int32
	cycles  atomic.Uint64
}

func NewScheduler(logger *slog.Logger, worker Worker, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		worker:   worker,
		logger:   logger,
		minDelay: opts.MinDelay,
		maxFloor: opts.MaxFloor,
		int64n:   opts.Int64N,
	}
	if s.minDelay <= 0 {
		s.minDelay = minCaptureDelay
	}
	if s.maxFloor < s.minDelay {
		s.maxFloor = maxCaptureDelayLo
		if s.maxFloor < s.minDelay {
			s.maxFloor = s.minDelay
		}
	}
	if s.int64n == nil {
		s.int64n = rand.Int63n
	}
	return s
}

// Start replaces any live loop. With enabled=false it only cancels.
func (s *Scheduler) Start(enabled bool, intervalHint time.Duration) {
	s.mu.Lock()
	prev := s.stopLocked()
	if !enabled {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	s.started.Add(1)
	if s.logger != nil {
		s.logger.Debug("capture loop starting", "hint", intervalHint)
	}
	go s.loop(ctx, intervalHint, prev, done)
}

// Stop cancels the live loop, if any. The loop exits at its next check point.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// stopLocked cancels the current loop and returns its done channel.
func (s *Scheduler) stopLocked() chan struct{} {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.done
}

// Wait blocks until every loop has exited or ctx ends. Call after Stop.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a loop is currently capturing.
func (s *Scheduler) Running() bool { return s.live.Load() > 0 }

func (s *Scheduler) loop(ctx context.Context, hint time.Duration, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	// prev is always cancelled by now; waiting keeps the chain strict even
	// when this loop is itself cancelled before it begins.
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}
	n := s.live.Add(1)
	defer s.live.Add(-1)
	for {
		m := s.maxLive.Load()
		if n <= m || s.maxLive.CompareAndSwap(m, n) {
			break
		}
	}
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("capture loop panic", "error", r, "stack", string(debug.Stack()))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		s.worker.CaptureCycle(ctx)
		s.cycles.Add(1)
		if ctx.Err() != nil {
			return
		}
		t := time.NewTimer(s.nextDelay(hint))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// nextDelay draws uniformly from [minDelay, max(maxFloor, hint)].
func (s *Scheduler) nextDelay(hint time.Duration) time.Duration {
	upper := s.maxFloor
	if hint > upper {
		upper = hint
	}
	span := int64(upper - s.minDelay)
	if span <= 0 {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.int64n(span+1))
}

// Stats merges loop counters with the worker's own counters when available.
func (s *Scheduler) Stats() CaptureStats {
	var st CaptureStats
	if p, ok := s.worker.(interface{ Stats() CaptureStats }); ok {
		st = p.Stats()
	}
	st.LoopsStarted = s.started.Load()
	st.LiveLoops = s.live.Load()
	st.Cycles = s.cycles.Load()
	return st
}

// MaxLive is the highest number of concurrently live loops ever observed.
func (s *Scheduler) MaxLive() int32 { return s.maxLive.Load() }
