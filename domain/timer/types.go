package timer

import (
	"fmt"
	"strings"
	"time"
)

// Phase enumerates the observable phases of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// TimerState is the single authoritative session state.
// StartInstant carries the monotonic clock reading and is the zero Time
// whenever Running is false.
type TimerState struct {
	Elapsed       time.Duration
	Running       bool
	StartInstant  time.Time
	StartDateTime *time.Time
	EndDateTime   *time.Time
}

// HasStartInstant reports whether a running segment is open.
func (s TimerState) HasStartInstant() bool { return !s.StartInstant.IsZero() }

// Phase derives the session phase from the state fields.
func (s TimerState) Phase() Phase {
	switch {
	case s.Running:
		return PhaseRunning
	case s.Elapsed > 0:
		return PhasePaused
	default:
		return PhaseIdle
	}
}

// ActivityConfig is replaced as a whole; readers always see a consistent copy.
type ActivityConfig struct {
	TrackKeyboard       bool          `json:"track_keyboard"`
	TrackMouse          bool          `json:"track_mouse"`
	CaptureEnabled      bool          `json:"capture_enabled"`
	CaptureIntervalHint time.Duration `json:"capture_interval_hint"`
	IdleThreshold       time.Duration `json:"idle_threshold"`
	IdleEnabled         bool          `json:"idle_enabled"`
	AskIdleReason       bool          `json:"ask_idle_reason"`
}

// DefaultActivityConfig mirrors the desktop defaults: capture every ~10s,
// idle after 30s without input.
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		TrackKeyboard:       true,
		TrackMouse:          true,
		CaptureEnabled:      true,
		CaptureIntervalHint: 10 * time.Second,
		IdleThreshold:       30 * time.Second,
		IdleEnabled:         true,
		AskIdleReason:       true,
	}
}

// TimerResponse is the snapshot pushed to observers.
type TimerResponse struct {
	ElapsedSeconds uint64     `json:"elapsed_seconds"`
	Running        bool       `json:"running"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
}

// CommandKind identifies a timer command.
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdPause
	CmdResume
	CmdStop
	CmdAddTime
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdStop:
		return "stop"
	case CmdAddTime:
		return "add_time"
	default:
		return "unknown"
	}
}

// Command is a request to mutate the timer. Seconds is only read by CmdAddTime.
type Command struct {
	Kind    CommandKind
	Seconds uint64
}

func Start() Command                 { return Command{Kind: CmdStart} }
func Pause() Command                 { return Command{Kind: CmdPause} }
func Resume() Command                { return Command{Kind: CmdResume} }
func Stop() Command                  { return Command{Kind: CmdStop} }
func AddTime(seconds uint64) Command { return Command{Kind: CmdAddTime, Seconds: seconds} }

// ParseCommand maps a wire name ("start", "add_time", ...) to a Command.
func ParseCommand(name string, seconds uint64) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "start":
		return Start(), nil
	case "pause":
		return Pause(), nil
	case "resume":
		return Resume(), nil
	case "stop":
		return Stop(), nil
	case "add_time", "addtime":
		return AddTime(seconds), nil
	}
	return Command{}, fmt.Errorf("timer: unknown command %q", name)
}

// CaptureController is the scheduler side of the machine. Calls are made
// after the state lock is released and may block.
type CaptureController interface {
	Start(enabled bool, intervalHint time.Duration)
	Stop()
}

// SnapshotSink receives snapshots that must go out immediately (Stop).
type SnapshotSink interface {
	Publish(TimerResponse)
}

// Listener is called after every phase change, outside the state lock.
type Listener func(prev, next Phase)
