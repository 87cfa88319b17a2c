package capture

import (
	"fmt"
	"strings"
	"time"
)

// DisplayName labels a display the way the desktop shell shows it.
func DisplayName(index int, primary bool) string {
	if primary {
		return fmt.Sprintf("Primary Display (%d)", index+1)
	}
	return fmt.Sprintf("Display %d", index+1)
}

var nameReplacer = strings.NewReplacer("|", "", `\`, "", ":", "", "/", "", " ", "-", "(", "", ")", "")

// normalizeName strips characters that are unsafe in file names.
func normalizeName(s string) string {
	return strings.ToLower(nameReplacer.Replace(s))
}

// fileName builds <prefix>-<display>-<timestamp>.jpg.
func fileName(prefix string, d DisplayInfo, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s.jpg", normalizeName(prefix), normalizeName(d.Name), at.UTC().Format("20060102T150405.000Z"))
}

// Select applies mode to the enumerated displays. Any out-of-range index
// rejects the whole selection.
func Select(displays []DisplayInfo, mode CaptureMode) ([]DisplayInfo, error) {
	if len(displays) == 0 {
		return nil, ErrNoDisplays
	}
	pick := func(i int) (DisplayInfo, error) {
		if i < 0 || i >= len(displays) {
			return DisplayInfo{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidDisplayIndex, i, len(displays)-1)
		}
		return displays[i], nil
	}
	switch mode.Kind {
	case ModeSingle:
		d, err := pick(mode.Index)
		if err != nil {
			return nil, err
		}
		return []DisplayInfo{d}, nil
	case ModeMultiple:
		out := make([]DisplayInfo, 0, len(mode.Indices))
		for _, i := range mode.Indices {
			d, err := pick(i)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	default:
		return append([]DisplayInfo(nil), displays...), nil
	}
}
