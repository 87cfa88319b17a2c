package ledger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLedger() (*Ledger, *stepClock) {
	clk := &stepClock{now: time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)}
	return New(discardLogger, clk.Now), clk
}

func TestLedger_StartTwiceFails(t *testing.T) {
	l, _ := newTestLedger()
	first, err := l.Start("proj1", "task1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.True(t, first.Open())

	_, err = l.Start("proj1", "task2")
	assert.ErrorIs(t, err, ErrAlreadyTracking)

	cur, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, "task1", cur.TaskID, "failed start must not replace the entry")
}

func TestLedger_StopWithoutEntryFails(t *testing.T) {
	l, _ := newTestLedger()
	_, err := l.Stop()
	assert.ErrorIs(t, err, ErrNotTracking)
	assert.ErrorIs(t, l.AnnotateIdle(time.Now(), time.Now(), nil), ErrNotTracking)
}

func TestLedger_StopClosesAndClears(t *testing.T) {
	l, clk := newTestLedger()
	started, err := l.Start("p", "t")
	require.NoError(t, err)
	clk.Advance(90 * time.Second)

	done, err := l.Stop()
	require.NoError(t, err)
	assert.Equal(t, started.ID, done.ID)
	require.NotNil(t, done.EndTime)
	require.NotNil(t, done.Duration)
	assert.Equal(t, int64(90), *done.Duration)
	assert.False(t, done.Open())
	assert.False(t, l.Tracking())

	_, ok := l.Current()
	assert.False(t, ok)

	// slot is free again
	_, err = l.Start("p", "t")
	assert.NoError(t, err)
}

func TestLedger_DiscardedIdleReducesDuration(t *testing.T) {
	l, clk := newTestLedger()
	_, err := l.Start("p", "t")
	require.NoError(t, err)

	idleFrom := clk.Now().Add(10 * time.Minute)
	idleTo := idleFrom.Add(5 * time.Minute)
	reason := "coffee"
	require.NoError(t, l.AnnotateIdle(idleFrom, idleTo, &reason))
	reason = "mutated"

	cur, _ := l.Current()
	require.NotNil(t, cur.IdleTime)
	assert.Equal(t, int64(300), cur.IdleTime.Duration)
	require.NotNil(t, cur.IdleTime.Reason)
	assert.Equal(t, "coffee", *cur.IdleTime.Reason)

	clk.Advance(time.Hour)
	done, err := l.Stop()
	require.NoError(t, err)
	assert.Equal(t, int64(3600-300), *done.Duration)
	assert.Equal(t, int64(300), done.DiscardedSeconds)
}

func TestLedger_IdleBeforeEntryIsClamped(t *testing.T) {
	l, clk := newTestLedger()
	_, err := l.Start("p", "t")
	require.NoError(t, err)
	require.NoError(t, l.AnnotateIdle(clk.Now().Add(-time.Minute), clk.Now().Add(30*time.Second), nil))
	cur, _ := l.Current()
	assert.Equal(t, int64(30), cur.DiscardedSeconds)
}

func TestLedger_IdleFromEarlierEntryIsRejected(t *testing.T) {
	l, clk := newTestLedger()
	idleStart := clk.Now().Add(-10 * time.Minute)
	idleEnd := clk.Now().Add(-2 * time.Minute)
	_, err := l.Start("p", "t")
	require.NoError(t, err)

	assert.ErrorIs(t, l.AnnotateIdle(idleStart, idleEnd, nil), ErrIdleBeforeEntry)
	assert.ErrorIs(t, l.AnnotateIdle(idleStart, clk.Now(), nil), ErrIdleBeforeEntry, "ending exactly at entry start is still outside it")

	cur, _ := l.Current()
	assert.Nil(t, cur.IdleTime)
	assert.Zero(t, cur.DiscardedSeconds)
}

func TestLedger_CurrentReturnsCopy(t *testing.T) {
	l, _ := newTestLedger()
	_, err := l.Start("p", "t")
	require.NoError(t, err)
	cur, _ := l.Current()
	cur.ProjectID = "changed"
	again, _ := l.Current()
	assert.Equal(t, "p", again.ProjectID)
}
