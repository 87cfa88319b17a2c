package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger holds the single current time entry. History is not kept; closed
// entries are handed back to the caller.
type Ledger struct {
	mu      sync.Mutex
	current *TimeEntry
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

// New constructs an empty ledger. now defaults to time.Now.
func New(logger *slog.Logger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now, newID: uuid.NewString, logger: logger}
}

// Start opens a new entry. Project and task IDs are trusted as given.
func (l *Ledger) Start(projectID, taskID string) (TimeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return TimeEntry{}, ErrAlreadyTracking
	}
	e := &TimeEntry{
		ID:        l.newID(),
		ProjectID: projectID,
		TaskID:    taskID,
		StartTime: l.now().Round(0),
	}
	l.current = e
	if l.logger != nil {
		l.logger.Info("time entry started", "id", e.ID, "project", projectID, "task", taskID)
	}
	return e.clone(), nil
}

// Stop closes and returns the current entry, clearing the slot.
func (l *Ledger) Stop() (TimeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return TimeEntry{}, ErrNotTracking
	}
	e := l.current
	l.current = nil
	end := l.now().Round(0)
	secs := int64(end.Sub(e.StartTime)/time.Second) - e.DiscardedSeconds
	if secs < 0 {
		secs = 0
	}
	e.EndTime = &end
	e.Duration = &secs
	if l.logger != nil {
		l.logger.Info("time entry stopped", "id", e.ID, "duration_s", secs, "discarded_s", e.DiscardedSeconds)
	}
	return e.clone(), nil
}

// Current returns a copy of the open entry, if any.
func (l *Ledger) Current() (TimeEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return TimeEntry{}, false
	}
	return l.current.clone(), true
}

// Tracking reports whether an entry is open.
func (l *Ledger) Tracking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// AnnotateIdle attaches [start, end) as discarded idle time on the current
// entry. The latest interval is kept in IdleTime; DiscardedSeconds sums all.
// An interval that ended before the entry started is rejected.
func (l *Ledger) AnnotateIdle(start, end time.Time, reason *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return ErrNotTracking
	}
	if end.Before(start) {
		start, end = end, start
	}
	if !end.After(l.current.StartTime) {
		return ErrIdleBeforeEntry
	}
	// idle that began before the entry does not count against it
	if start.Before(l.current.StartTime) {
		start = l.current.StartTime
	}
	secs := int64(end.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}
	var r *string
	if reason != nil {
		v := *reason
		r = &v
	}
	l.current.IdleTime = &IdleTimeEntry{StartTime: start.Round(0), EndTime: end.Round(0), Duration: secs, Reason: r}
	l.current.DiscardedSeconds += secs
	return nil
}
