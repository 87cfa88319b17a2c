package model

import (
	"sync"

	"github.com/soocke/worktimer-go/domain/timer"
)

// SessionModel accumulates tracked seconds across timer sessions from the
// snapshots the publisher pushes. A session opens with the first snapshot
// carrying a start time and closes with the terminal snapshot of Stop.
// The zero value is ready to use and safe for concurrent use.
type SessionModel struct {
	mu        sync.Mutex
	open      bool
	current   uint64
	accounted uint64
	completed int
}

// NewSessionModel returns a pointer to a ready-to-use SessionModel.
func NewSessionModel() *SessionModel { return &SessionModel{} }

// Observe folds one snapshot into the model.
func (m *SessionModel) Observe(resp timer.TimerResponse) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.StartTime != nil {
		m.open = true
		m.current = resp.ElapsedSeconds
		return
	}
	if resp.EndTime != nil && m.open {
		m.accounted += m.current
		m.completed++
		m.open = false
		m.current = 0
	}
}

// Values returns the ongoing session's seconds, the total including it, and
// the number of finished sessions.
func (m *SessionModel) Values() (session, total uint64, completed int) {
	if m == nil {
		return 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total = m.accounted
	if m.open {
		session = m.current
		total += session
	}
	return session, total, m.completed
}
