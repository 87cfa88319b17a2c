//go:build linux

package capture

import (
	"image"
	"log/slog"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xinerama"
)

// XDisplays enumerates monitors through Xinerama and captures each monitor's
// rectangle out of the root window. Without Xinerama the root screen is
// reported as one display.
type XDisplays struct {
	display string
	logger  *slog.Logger
}

func NewPlatformDisplays(logger *slog.Logger) Displays { return &XDisplays{logger: logger} }

func (x *XDisplays) Enumerate() ([]DisplayInfo, error) {
	conn, err := xgb.NewConnDisplay(x.display)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := xinerama.Init(conn); err != nil {
		if x.logger != nil {
			x.logger.Debug("xinerama unavailable, using root screen", "error", err)
		}
		return screenDisplays()
	}
	reply, err := xinerama.QueryScreens(conn).Reply()
	if err != nil || len(reply.ScreenInfo) == 0 {
		return screenDisplays()
	}
	out := make([]DisplayInfo, 0, len(reply.ScreenInfo))
	primary := 0
	for i, s := range reply.ScreenInfo {
		if s.XOrg == 0 && s.YOrg == 0 {
			primary = i
			break
		}
	}
	for i, s := range reply.ScreenInfo {
		out = append(out, DisplayInfo{
			Index:     i,
			Name:      DisplayName(i, i == primary),
			Width:     int(s.Width),
			Height:    int(s.Height),
			IsPrimary: i == primary,
			X:         int(s.XOrg),
			Y:         int(s.YOrg),
			Scale:     1,
		})
	}
	return out, nil
}

func (x *XDisplays) Capture(d DisplayInfo) (*image.RGBA, error) {
	return captureRect(d.Bounds())
}
