package idle

import (
	"context"
	"time"

	"github.com/soocke/worktimer-go/domain/timer"
)

// State is the detector's activity model.
type State int

const (
	StateActive State = iota
	StatePotentiallyIdle
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePotentiallyIdle:
		return "potentially_idle"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// IdleState is the externally visible idle flag.
type IdleState struct {
	IsIdle    bool       `json:"is_idle"`
	IdleSince *time.Time `json:"idle_since,omitempty"`
}

// PendingDecision is an idle interval waiting for keep/discard.
type PendingDecision struct {
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	Duration  int64     `json:"duration"`
	AskReason bool      `json:"ask_reason"`
}

// IdleNotice is the payload of the idle event.
type IdleNotice struct {
	Since time.Time `json:"since"`
}

// SessionSource tells whether a timer segment is running.
type SessionSource interface {
	Active(ctx context.Context) bool
}

// ConfigSource provides the current activity configuration.
type ConfigSource interface {
	ActivityConfig(ctx context.Context) (timer.ActivityConfig, error)
}

// Annotator records discarded idle time on the current entry.
type Annotator interface {
	AnnotateIdle(start, end time.Time, reason *string) error
}

// Notifier pushes events to observers.
type Notifier interface {
	Emit(event string, payload any)
}
