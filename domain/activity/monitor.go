package activity

import "sync"

// DeviceMonitor turns raw input state into activity by diffing against the
// previous poll. The first poll only records a baseline.
type DeviceMonitor struct {
	prim Primitive

	mu          sync.Mutex
	havePrev    bool
	lastKeys    KeySet
	lastPointer PointerState
}

func NewDeviceMonitor(p Primitive) *DeviceMonitor { return &DeviceMonitor{prim: p} }

// Poll reads the primitive. Keyboard activity means the pressed-key set
// changed; mouse activity means the pointer moved or a button is held.
// Untracked devices are not read at all.
func (m *DeviceMonitor) Poll(trackKeyboard, trackMouse bool) (Status, error) {
	var (
		keys KeySet
		ptr  PointerState
		err  error
	)
	if trackKeyboard {
		if keys, err = m.prim.PressedKeys(); err != nil {
			return Status{}, err
		}
	}
	if trackMouse {
		if ptr, err = m.prim.Pointer(); err != nil {
			return Status{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var st Status
	if m.havePrev {
		st.KeyboardActive = trackKeyboard && keys != m.lastKeys
		st.MouseActive = trackMouse && (ptr.X != m.lastPointer.X || ptr.Y != m.lastPointer.Y || ptr.AnyButton)
	}
	if trackKeyboard {
		m.lastKeys = keys
	}
	if trackMouse {
		m.lastPointer = ptr
	}
	m.havePrev = true
	return st, nil
}

// Reset drops the baseline so the next poll reports nothing.
func (m *DeviceMonitor) Reset() {
	m.mu.Lock()
	m.havePrev = false
	m.mu.Unlock()
}

var _ Source = (*DeviceMonitor)(nil)
