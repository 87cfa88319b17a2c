package ledger

import (
	"errors"
	"time"
)

var (
	ErrAlreadyTracking = errors.New("ledger: already tracking a time entry")
	ErrNotTracking     = errors.New("ledger: no active time entry")
	ErrIdleBeforeEntry = errors.New("ledger: idle interval ended before the time entry started")
)

// IdleTimeEntry records an idle interval the user chose to discard.
type IdleTimeEntry struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  int64     `json:"duration"`
	Reason    *string   `json:"reason,omitempty"`
}

// TimeEntry is one tracked interval. Duration is set in seconds on close and
// excludes every discarded idle interval.
type TimeEntry struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	TaskID           string         `json:"task_id"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	Duration         *int64         `json:"duration,omitempty"`
	IdleTime         *IdleTimeEntry `json:"idle_time,omitempty"`
	DiscardedSeconds int64          `json:"discarded_seconds"`
}

// Open reports whether the entry has not been closed yet.
func (e TimeEntry) Open() bool { return e.EndTime == nil }

func (e TimeEntry) clone() TimeEntry {
	out := e
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	if e.Duration != nil {
		d := *e.Duration
		out.Duration = &d
	}
	if e.IdleTime != nil {
		it := *e.IdleTime
		if it.Reason != nil {
			r := *it.Reason
			it.Reason = &r
		}
		out.IdleTime = &it
	}
	return out
}
