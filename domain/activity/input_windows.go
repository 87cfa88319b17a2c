//go:build windows

package activity

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	getAsyncKeyState = user32.NewProc("GetAsyncKeyState")
	getCursorPos     = user32.NewProc("GetCursorPos")
)

// Win32Input polls key and cursor state through user32.
type Win32Input struct{}

func (Win32Input) PressedKeys() (KeySet, error) {
	if err := getAsyncKeyState.Find(); err != nil {
		return KeySet{}, err
	}
	var ks KeySet
	// 0x01-0x06 are mouse buttons; keyboard VKs start at 0x08
	for vk := 0x08; vk <= 0xFE; vk++ {
		r, _, _ := getAsyncKeyState.Call(uintptr(vk))
		if r&0x8000 != 0 {
			ks.Add(uint8(vk))
		}
	}
	return ks, nil
}

func (Win32Input) Pointer() (PointerState, error) {
	if err := getCursorPos.Find(); err != nil {
		return PointerState{}, err
	}
	var pt struct{ X, Y int32 }
	r, _, callErr := getCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if r == 0 {
		return PointerState{}, callErr
	}
	pressed := false
	// VK_LBUTTON, VK_RBUTTON, VK_MBUTTON, VK_XBUTTON1, VK_XBUTTON2
	for _, vk := range []uintptr{0x01, 0x02, 0x04, 0x05, 0x06} {
		s, _, _ := getAsyncKeyState.Call(vk)
		if s&0x8000 != 0 {
			pressed = true
			break
		}
	}
	return PointerState{X: int(pt.X), Y: int(pt.Y), AnyButton: pressed}, nil
}

// NewPlatform returns the user32 backend.
func NewPlatform() (Primitive, error) { return Win32Input{}, nil }
