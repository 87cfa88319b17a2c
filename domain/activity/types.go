package activity

import "errors"

// ErrUnsupported is returned by NewPlatform where no input backend exists.
var ErrUnsupported = errors.New("activity: input polling not supported on this platform")

// KeySet is a 256-bit set of key codes (X11 keycodes or Windows virtual keys).
type KeySet [32]byte

func (k *KeySet) Add(code uint8)     { k[code/8] |= 1 << (code % 8) }
func (k KeySet) Has(code uint8) bool { return k[code/8]&(1<<(code%8)) != 0 }

// Len returns the number of keys in the set.
func (k KeySet) Len() int {
	n := 0
	for _, b := range k {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// PointerState is the pointer position and whether any button is held.
type PointerState struct {
	X, Y      int
	AnyButton bool
}

// Primitive reads raw input state at the time of the call.
type Primitive interface {
	PressedKeys() (KeySet, error)
	Pointer() (PointerState, error)
}

// Status is the outcome of one poll.
type Status struct {
	KeyboardActive bool `json:"keyboard_active"`
	MouseActive    bool `json:"mouse_active"`
}

// Any reports whether either device saw activity.
func (s Status) Any() bool { return s.KeyboardActive || s.MouseActive }

// Source yields one activity Status per poll.
type Source interface {
	Poll(trackKeyboard, trackMouse bool) (Status, error)
}
