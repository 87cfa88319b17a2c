package idle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/worktimer-go/domain/activity"
	"github.com/soocke/worktimer-go/domain/ledger"
	"github.com/soocke/worktimer-go/domain/publish"
	"github.com/soocke/worktimer-go/domain/timer"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	active bool
	err    error
	polls  int
}

func (f *fakeSource) Poll(trackKeyboard, trackMouse bool) (activity.Status, error) {
	f.polls++
	if f.err != nil {
		return activity.Status{}, f.err
	}
	return activity.Status{KeyboardActive: f.active && trackKeyboard, MouseActive: f.active && trackMouse}, nil
}

type fakeSession struct{ active bool }

func (f *fakeSession) Active(context.Context) bool { return f.active }

type fakeConfig struct{ cfg timer.ActivityConfig }

func (f *fakeConfig) ActivityConfig(context.Context) (timer.ActivityConfig, error) { return f.cfg, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	last   any
}

func (r *recordingNotifier) Emit(event string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.last = payload
	r.mu.Unlock()
}

type harness struct {
	d       *Detector
	src     *fakeSource
	session *fakeSession
	cfg     *fakeConfig
	notes   *recordingNotifier
	ledger  *ledger.Ledger
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:     &fakeSource{},
		session: &fakeSession{active: true},
		cfg:     &fakeConfig{cfg: timer.DefaultActivityConfig()},
		notes:   &recordingNotifier{},
		now:     time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.ledger = ledger.New(discardLogger, clock)
	h.d = NewDetector(discardLogger, h.src, h.session, h.cfg, Options{Ledger: h.ledger, Notifier: h.notes, Now: clock})
	return h
}

// tick advances the simulated clock then polls once.
func (h *harness) tick(d time.Duration, active bool) {
	h.now = h.now.Add(d)
	h.src.active = active
	h.d.CheckIdleStatus(context.Background(), h.now)
}

func TestDetector_HysteresisAtThreshold(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false) // becomes potentially idle here
	assert.Equal(t, StatePotentiallyIdle, h.d.State())
	for i := 0; i < 29; i++ {
		h.tick(time.Second, false)
		require.False(t, h.d.IsUserIdle(), "idle after only %ds", i+1)
	}
	h.tick(time.Second, false)
	assert.True(t, h.d.IsUserIdle())
	is := h.d.IdleState()
	require.NotNil(t, is.IdleSince)
	assert.Equal(t, 30*time.Second, h.now.Sub(*is.IdleSince))
	assert.Equal(t, []string{publish.EventIdle}, h.notes.events)
}

func TestDetector_SingleActivityResets(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false)
	h.tick(20*time.Second, false)
	h.tick(time.Second, true)
	assert.Equal(t, StateActive, h.d.State())
	// the clock restarts from the next quiet tick
	h.tick(time.Second, false)
	h.tick(29*time.Second, false)
	assert.False(t, h.d.IsUserIdle())
}

func TestDetector_ReturnFromIdleRaisesPendingDecision(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false)
	h.tick(45*time.Second, false)
	require.True(t, h.d.IsUserIdle())
	h.tick(15*time.Second, true)

	assert.False(t, h.d.IsUserIdle())
	p, ok := h.d.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(60), p.Duration)
	assert.True(t, p.AskReason)
	assert.Equal(t, []string{publish.EventIdle, publish.EventIdleResolved}, h.notes.events)
	assert.True(t, h.d.ActivityStatus().Any())
}

func TestDetector_DiscardAnnotatesEntry(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Start("proj1", "task1")
	require.NoError(t, err)

	h.tick(0, false)
	h.tick(40*time.Second, false)
	h.tick(20*time.Second, true)

	reason := "meeting"
	require.NoError(t, h.d.HandleIdleDecision(false, &reason))
	_, ok := h.d.Pending()
	assert.False(t, ok)

	cur, _ := h.ledger.Current()
	require.NotNil(t, cur.IdleTime)
	assert.Equal(t, int64(60), cur.IdleTime.Duration)
	assert.Equal(t, "meeting", *cur.IdleTime.Reason)

	h.now = h.now.Add(time.Minute)
	done, err := h.ledger.Stop()
	require.NoError(t, err)
	assert.Equal(t, int64(60), *done.Duration, "two minutes tracked minus one discarded")
}

func TestDetector_KeepLeavesEntryUntouched(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Start("p", "t")
	require.NoError(t, err)
	h.tick(0, false)
	h.tick(31*time.Second, false)
	h.tick(time.Second, true)

	require.NoError(t, h.d.HandleIdleDecision(true, nil))
	cur, _ := h.ledger.Current()
	assert.Nil(t, cur.IdleTime)
	assert.Zero(t, cur.DiscardedSeconds)
}

func TestDetector_DecisionWhileStillIdle(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Start("p", "t")
	require.NoError(t, err)
	h.tick(0, false)
	h.tick(35*time.Second, false)
	require.True(t, h.d.IsUserIdle())

	h.now = h.now.Add(5 * time.Second)
	require.NoError(t, h.d.HandleIdleDecision(false, nil))
	assert.False(t, h.d.IsUserIdle())
	cur, _ := h.ledger.Current()
	require.NotNil(t, cur.IdleTime)
	assert.Equal(t, int64(40), cur.IdleTime.Duration)
}

func TestDetector_DiscardWithoutEntrySurfacesLedgerError(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false)
	h.tick(30*time.Second, false)
	h.tick(time.Second, true)
	assert.ErrorIs(t, h.d.HandleIdleDecision(false, nil), ledger.ErrNotTracking)
}

func TestDetector_NoDecisionIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.d.HandleIdleDecision(false, nil))
}

func TestDetector_DisabledOrNoSessionReportsNothing(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false)
	h.tick(31*time.Second, false)
	require.True(t, h.d.IsUserIdle())

	h.cfg.cfg.IdleEnabled = false
	polls := h.src.polls
	h.tick(time.Second, true)
	assert.False(t, h.d.IsUserIdle())
	assert.Equal(t, polls, h.src.polls, "disabled ticks must not poll")
	assert.False(t, h.d.ActivityStatus().Any())

	h.cfg.cfg.IdleEnabled = true
	h.session.active = false
	h.tick(0, false)
	h.tick(time.Minute, false)
	assert.Equal(t, StateActive, h.d.State())
}

func TestDetector_PauseWhileIdleLeavesPendingDecision(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Start("p", "t")
	require.NoError(t, err)
	h.tick(0, false)
	h.tick(40*time.Second, false)
	require.True(t, h.d.IsUserIdle())

	h.session.active = false
	h.tick(10*time.Second, false)
	assert.Equal(t, StateActive, h.d.State())
	assert.Equal(t, []string{publish.EventIdle, publish.EventIdleResolved}, h.notes.events)
	p, ok := h.d.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(50), p.Duration)

	// further inactive ticks raise nothing new
	h.tick(time.Minute, false)
	assert.Len(t, h.notes.events, 2)

	require.NoError(t, h.d.HandleIdleDecision(false, nil))
	cur, _ := h.ledger.Current()
	assert.Equal(t, int64(50), cur.DiscardedSeconds)
}

func TestDetector_PollErrorSuppressesTick(t *testing.T) {
	h := newHarness(t)
	h.tick(0, false)
	h.src.err = errors.New("display gone")
	h.tick(time.Minute, false)
	assert.Equal(t, StatePotentiallyIdle, h.d.State())
	h.src.err = nil
	h.tick(0, false)
	assert.True(t, h.d.IsUserIdle())
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	d := NewDetector(discardLogger, h.src, h.session, h.cfg, Options{PollPeriod: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = d.Run(ctx); close(done) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
