package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mutterDestination = "org.gnome.Mutter.IdleMonitor"
	mutterObjectPath  = "/org/gnome/Mutter/IdleMonitor/Core"
	mutterMethod      = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

// IdleClock returns milliseconds since the last user input.
type IdleClock interface {
	IdleMillis() (uint64, error)
}

// MutterIdleClock reads GNOME's IdleMonitor over the session bus. It works on
// Wayland sessions where X11 input polling is unavailable.
type MutterIdleClock struct {
	conn *dbus.Conn
}

// NewMutterIdleClock connects to the session bus and probes the monitor once.
func NewMutterIdleClock() (*MutterIdleClock, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("activity: connect session bus: %w", err)
	}
	c := &MutterIdleClock{conn: conn}
	if _, err := c.IdleMillis(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *MutterIdleClock) IdleMillis() (uint64, error) {
	obj := c.conn.Object(mutterDestination, dbus.ObjectPath(mutterObjectPath))
	call := obj.Call(mutterMethod, 0)
	if call.Err != nil {
		return 0, fmt.Errorf("activity: IdleMonitor.GetIdletime: %w", call.Err)
	}
	var ms uint64
	if err := call.Store(&ms); err != nil {
		return 0, fmt.Errorf("activity: decode idletime: %w", err)
	}
	return ms, nil
}

func (c *MutterIdleClock) Close() error { return c.conn.Close() }

// IdleClockSource reports activity when the last input is newer than the
// previous poll. The compositor does not tell keyboard from pointer, so both
// flags move together, filtered by what is tracked.
type IdleClockSource struct {
	clock IdleClock
	now   func() time.Time

	mu       sync.Mutex
	lastPoll time.Time
}

func NewIdleClockSource(c IdleClock, now func() time.Time) *IdleClockSource {
	if now == nil {
		now = time.Now
	}
	return &IdleClockSource{clock: c, now: now}
}

func (s *IdleClockSource) Poll(trackKeyboard, trackMouse bool) (Status, error) {
	if !trackKeyboard && !trackMouse {
		return Status{}, nil
	}
	ms, err := s.clock.IdleMillis()
	if err != nil {
		return Status{}, err
	}
	idle := time.Duration(ms) * time.Millisecond
	now := s.now()
	s.mu.Lock()
	active := !s.lastPoll.IsZero() && idle < now.Sub(s.lastPoll)
	s.lastPoll = now
	s.mu.Unlock()
	return Status{KeyboardActive: active && trackKeyboard, MouseActive: active && trackMouse}, nil
}

var _ Source = (*IdleClockSource)(nil)
