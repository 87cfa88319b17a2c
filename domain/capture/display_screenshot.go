//go:build !windows

package capture

import (
	"image"

	"github.com/vova616/screenshot"
)

func captureRect(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, ErrNoDisplays
	}
	return screenshot.CaptureRect(r)
}

// screenDisplays exposes the whole root screen as a single display.
func screenDisplays() ([]DisplayInfo, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return nil, err
	}
	if r.Empty() {
		return nil, nil
	}
	return []DisplayInfo{{
		Index:     0,
		Name:      DisplayName(0, true),
		Width:     r.Dx(),
		Height:    r.Dy(),
		IsPrimary: true,
		X:         r.Min.X,
		Y:         r.Min.Y,
		Scale:     1,
	}}, nil
}
