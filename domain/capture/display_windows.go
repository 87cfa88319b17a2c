//go:build windows

package capture

// Windows capture BitBlts each monitor rectangle of the virtual desktop into
// a temporary top-down DIB and converts BGRA to RGBA on the Go heap.

import (
	"fmt"
	"image"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	srccopy             = 0x00CC0020
	dibRGBColors        = 0
	biRgb               = 0
	monitorInfoFPrimary = 0x1
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	gdi32                   = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC               = user32.NewProc("GetDC")
	procReleaseDC           = user32.NewProc("ReleaseDC")
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
	procCreateCompatibleDC  = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC            = gdi32.NewProc("DeleteDC")
	procSelectObject        = gdi32.NewProc("SelectObject")
	procBitBlt              = gdi32.NewProc("BitBlt")
	procCreateDIBSection    = gdi32.NewProc("CreateDIBSection")
	procDeleteObject        = gdi32.NewProc("DeleteObject")
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte
}

type monitorInfo struct {
	CbSize    uint32
	RcMonitor windows.Rect
	RcWork    windows.Rect
	DwFlags   uint32
}

// GDIDisplays enumerates monitors with EnumDisplayMonitors.
type GDIDisplays struct {
	logger *slog.Logger
}

func NewPlatformDisplays(logger *slog.Logger) Displays { return &GDIDisplays{logger: logger} }

func (g *GDIDisplays) Enumerate() ([]DisplayInfo, error) {
	var out []DisplayInfo
	cb := windows.NewCallback(func(hMonitor, hdc, rect, lparam uintptr) uintptr {
		var mi monitorInfo
		mi.CbSize = uint32(unsafe.Sizeof(mi))
		if ok, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&mi))); ok == 0 {
			return 1
		}
		r := mi.RcMonitor
		primary := mi.DwFlags&monitorInfoFPrimary != 0
		idx := len(out)
		out = append(out, DisplayInfo{
			Index:     idx,
			Name:      DisplayName(idx, primary),
			Width:     int(r.Right - r.Left),
			Height:    int(r.Bottom - r.Top),
			IsPrimary: primary,
			X:         int(r.Left),
			Y:         int(r.Top),
			Scale:     1,
		})
		return 1
	})
	if ok, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0); ok == 0 {
		return nil, fmt.Errorf("capture: EnumDisplayMonitors: %v", err)
	}
	return out, nil
}

func (g *GDIDisplays) Capture(d DisplayInfo) (*image.RGBA, error) {
	return captureRect(d.Bounds())
}

// captureRect performs BitBlt from the desktop DC at r (virtual desktop
// coordinates, possibly negative) into a new *image.RGBA.
func captureRect(r image.Rectangle) (*image.RGBA, error) {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("capture: invalid rect %v", r)
	}

	screenDC, _, err := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("capture: GetDC: %v", err)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, err := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("capture: CreateCompatibleDC: %v", err)
	}
	defer procDeleteDC.Call(memDC)

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bitsPtr unsafe.Pointer
	bmp, _, err := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if bmp == 0 {
		return nil, fmt.Errorf("capture: CreateDIBSection: %v", err)
	}
	defer procDeleteObject.Call(bmp)

	prev, _, err := procSelectObject.Call(memDC, bmp)
	if prev == 0 || prev == ^uintptr(0) {
		return nil, fmt.Errorf("capture: SelectObject: %v", err)
	}

	ok, _, err := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(h), screenDC, uintptr(r.Min.X), uintptr(r.Min.Y), srccopy)
	if ok == 0 {
		return nil, fmt.Errorf("capture: BitBlt x=%d y=%d w=%d h=%d: %v", r.Min.X, r.Min.Y, w, h, err)
	}

	pixLen := w * h * 4
	src := unsafe.Slice((*byte)(bitsPtr), pixLen)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < pixLen; i += 4 {
		dst.Pix[i+0] = src[i+2]
		dst.Pix[i+1] = src[i+1]
		dst.Pix[i+2] = src[i+0]
		dst.Pix[i+3] = 0xFF
	}
	return dst, nil
}
