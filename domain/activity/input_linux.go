//go:build linux

package activity

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

const anyButtonMask = xproto.KeyButMaskButton1 | xproto.KeyButMaskButton2 | xproto.KeyButMaskButton3 |
	xproto.KeyButMaskButton4 | xproto.KeyButMaskButton5

// X11Input polls the core keyboard map and pointer of the default screen.
type X11Input struct {
	mu   sync.Mutex
	conn *xgb.Conn
	root xproto.Window
}

// NewX11Input opens a connection to display ("" uses $DISPLAY).
func NewX11Input(display string) (*X11Input, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("activity: connect X server: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return &X11Input{conn: conn, root: root}, nil
}

func (x *X11Input) PressedKeys() (KeySet, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	reply, err := xproto.QueryKeymap(x.conn).Reply()
	if err != nil {
		return KeySet{}, fmt.Errorf("activity: query keymap: %w", err)
	}
	var ks KeySet
	copy(ks[:], reply.Keys)
	return ks, nil
}

func (x *X11Input) Pointer() (PointerState, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	reply, err := xproto.QueryPointer(x.conn, x.root).Reply()
	if err != nil {
		return PointerState{}, fmt.Errorf("activity: query pointer: %w", err)
	}
	return PointerState{
		X:         int(reply.RootX),
		Y:         int(reply.RootY),
		AnyButton: reply.Mask&anyButtonMask != 0,
	}, nil
}

func (x *X11Input) Close() error {
	x.conn.Close()
	return nil
}

// NewPlatform returns the X11 backend.
func NewPlatform() (Primitive, error) { return NewX11Input("") }
