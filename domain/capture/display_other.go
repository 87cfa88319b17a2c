//go:build !linux && !windows

package capture

import (
	"image"
	"log/slog"
)

// RootDisplays reports the main screen only.
type RootDisplays struct{}

func NewPlatformDisplays(*slog.Logger) Displays { return RootDisplays{} }

func (RootDisplays) Enumerate() ([]DisplayInfo, error) { return screenDisplays() }

func (RootDisplays) Capture(d DisplayInfo) (*image.RGBA, error) { return captureRect(d.Bounds()) }
