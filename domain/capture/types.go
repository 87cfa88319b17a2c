package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

var (
	ErrNoDisplays          = errors.New("capture: no displays available")
	ErrInvalidDisplayIndex = errors.New("capture: display index out of range")
	ErrCaptureFailed       = errors.New("capture: capture failed")
	ErrSaveFailed          = errors.New("capture: save failed")
)

// DisplayInfo describes one enumerated display. Index is the position in the
// enumeration and the key used by capture modes.
type DisplayInfo struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	IsPrimary bool    `json:"is_primary"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Scale     float64 `json:"scale"`
	RefreshHz float64 `json:"refresh_hz"`
}

// Bounds returns the display rectangle in desktop coordinates.
func (d DisplayInfo) Bounds() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}

// Displays is the capture primitive: enumerate, then grab one display.
type Displays interface {
	Enumerate() ([]DisplayInfo, error)
	Capture(d DisplayInfo) (*image.RGBA, error)
}

// ModeKind selects which displays a capture covers.
type ModeKind int

const (
	ModeAll ModeKind = iota
	ModeSingle
	ModeMultiple
)

func (k ModeKind) String() string {
	switch k {
	case ModeAll:
		return "all"
	case ModeSingle:
		return "single"
	case ModeMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

func (k ModeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ModeKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "all", "":
		*k = ModeAll
	case "single":
		*k = ModeSingle
	case "multiple":
		*k = ModeMultiple
	default:
		return fmt.Errorf("capture: unknown mode %q", b)
	}
	return nil
}

// CaptureMode is Single(index), All, or Multiple(indices).
type CaptureMode struct {
	Kind    ModeKind `json:"kind" toml:"kind"`
	Index   int      `json:"index,omitempty" toml:"index"`
	Indices []int    `json:"indices,omitempty" toml:"indices"`
}

func Single(index int) CaptureMode { return CaptureMode{Kind: ModeSingle, Index: index} }
func All() CaptureMode             { return CaptureMode{Kind: ModeAll} }
func Multiple(indices ...int) CaptureMode {
	return CaptureMode{Kind: ModeMultiple, Indices: append([]int(nil), indices...)}
}

func (m CaptureMode) String() string {
	switch m.Kind {
	case ModeSingle:
		return fmt.Sprintf("single(%d)", m.Index)
	case ModeMultiple:
		return fmt.Sprintf("multiple(%v)", m.Indices)
	default:
		return m.Kind.String()
	}
}

const (
	DefaultQuality = 85
	DefaultPrefix  = "screenshot"
)

// Settings controls what is captured and how it is written.
type Settings struct {
	Mode      CaptureMode `json:"mode"`
	Quality   int         `json:"quality"`
	Prefix    string      `json:"prefix"`
	OutputDir string      `json:"output_dir"`
}

func DefaultSettings() Settings {
	return Settings{Mode: All(), Quality: DefaultQuality, Prefix: DefaultPrefix}
}

// Normalize clamps quality to [1,100] and fills an empty prefix.
func (s Settings) Normalize() Settings {
	s.Quality = ClampQuality(s.Quality)
	if strings.TrimSpace(s.Prefix) == "" {
		s.Prefix = DefaultPrefix
	}
	s.Mode.Indices = append([]int(nil), s.Mode.Indices...)
	return s
}

func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// CapturedImage is a one-shot capture result with the JPEG payload in base64.
type CapturedImage struct {
	Display    DisplayInfo `json:"display"`
	Data       string      `json:"data"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	CapturedAt time.Time   `json:"captured_at"`
}

// ArchiveEntry describes one saved capture file.
type ArchiveEntry struct {
	DisplayIndex int
	DisplayName  string
	Path         string
	Width        int
	Height       int
	Bytes        int
	Quality      int
	CapturedAt   time.Time
}

// Archive records saved captures. Failures are logged by the caller.
type Archive interface {
	Record(ctx context.Context, e ArchiveEntry) error
}

// CaptureError ties a failure to the display it happened on.
type CaptureError struct {
	Display int
	Kind    error
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%v: display %d: %v", e.Kind, e.Display, e.Err)
}

func (e *CaptureError) Unwrap() []error { return []error{e.Kind, e.Err} }
