package publish

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/soocke/worktimer-go/domain/timer"
)

const DefaultPeriod = 100 * time.Millisecond

// SnapshotSource is the narrowed view of the timer the publisher needs.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (timer.TimerResponse, error)
}

// Publisher pushes a timer snapshot on a fixed period and relays ad-hoc
// events. It runs in every timer phase until its context ends.
type Publisher struct {
	src     SnapshotSource
	hub     *Hub
	period  time.Duration
	logger  *slog.Logger
	limiter *rate.Limiter

	published  atomic.Uint64
	failures   atomic.Uint64
	suppressed atomic.Uint64
}

// NewPublisher constructs a publisher. period <= 0 selects DefaultPeriod.
func NewPublisher(logger *slog.Logger, src SnapshotSource, hub *Hub, period time.Duration) *Publisher {
	if period <= 0 {
		period = DefaultPeriod
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Publisher{
		src:     src,
		hub:     hub,
		period:  period,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Hub exposes the underlying fan-out.
func (p *Publisher) Hub() *Hub { return p.hub }

// Subscribe registers an observer; see Hub.Subscribe.
func (p *Publisher) Subscribe() (<-chan Update, func()) { return p.hub.Subscribe() }

// Publish pushes resp immediately, outside the periodic cadence.
func (p *Publisher) Publish(resp timer.TimerResponse) {
	p.Emit(EventTimerUpdate, resp)
}

// Emit pushes an arbitrary event. Delivery failures are logged, never returned.
func (p *Publisher) Emit(event string, payload any) {
	if err := p.hub.Emit(Update{Event: event, Payload: payload}); err != nil {
		p.failures.Add(1)
		p.logThrottled("emit failed", err)
		return
	}
	p.published.Add(1)
}

// Run publishes until ctx is cancelled. A snapshot that cannot be read within
// one period is skipped.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	if p.src == nil {
		return
	}
	readCtx, cancel := context.WithTimeout(ctx, p.period)
	resp, err := p.src.Snapshot(readCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			p.logThrottled("snapshot read failed", err)
		}
		return
	}
	p.Publish(resp)
}

func (p *Publisher) logThrottled(msg string, err error) {
	if p.logger == nil {
		return
	}
	if !p.limiter.Allow() {
		p.suppressed.Add(1)
		return
	}
	p.logger.Warn(msg, "error", err, "suppressed", p.suppressed.Swap(0))
}

// Stats is a point-in-time view of publisher counters.
type Stats struct {
	Published   uint64
	Failures    uint64
	Subscribers int
}

func (p *Publisher) Stats() Stats {
	return Stats{Published: p.published.Load(), Failures: p.failures.Load(), Subscribers: p.hub.Subscribers()}
}

var _ timer.SnapshotSink = (*Publisher)(nil)
