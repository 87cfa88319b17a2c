package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Service owns capture settings and performs capture cycles against a
// Displays primitive. It is the worker driven by Scheduler.
type Service struct {
	displays Displays
	archive  Archive
	logger   *slog.Logger
	now      func() time.Time
	errLog   *rate.Limiter

	mu       sync.RWMutex
	settings Settings

	captures     atomic.Uint64
	failures     atomic.Uint64
	saved        atomic.Uint64
	captureNanos atomic.Uint64
	lastCapture  atomic.Int64
}

// NewService constructs a capture service. archive may be nil.
func NewService(logger *slog.Logger, displays Displays, archive Archive, settings Settings) *Service {
	return &Service{
		displays: displays,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
		errLog:   rate.NewLimiter(rate.Every(10*time.Second), 3),
		settings: settings.Normalize(),
	}
}

// Settings returns a copy of the current settings.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Normalize()
}

// ReplaceSettings swaps all settings at once.
func (s *Service) ReplaceSettings(next Settings) {
	next = next.Normalize()
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
}

// SetMode validates mode against the current displays before storing it.
// When displays cannot be enumerated the mode is stored unchecked and
// validated again at capture time.
func (s *Service) SetMode(mode CaptureMode) error {
	if displays, err := s.displays.Enumerate(); err == nil {
		if _, err := Select(displays, mode); err != nil {
			return err
		}
	}
	mode.Indices = append([]int(nil), mode.Indices...)
	s.mu.Lock()
	s.settings.Mode = mode
	s.mu.Unlock()
	return nil
}

// SetQuality stores q clamped to [1,100] and returns the stored value.
func (s *Service) SetQuality(q int) int {
	q = ClampQuality(q)
	s.mu.Lock()
	s.settings.Quality = q
	s.mu.Unlock()
	return q
}

func (s *Service) SetPrefix(prefix string) {
	s.mu.Lock()
	s.settings.Prefix = prefix
	s.settings = s.settings.Normalize()
	s.mu.Unlock()
}

// Displays enumerates the available displays.
func (s *Service) Displays() ([]DisplayInfo, error) {
	displays, err := s.displays.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate: %v", ErrCaptureFailed, err)
	}
	if len(displays) == 0 {
		return nil, ErrNoDisplays
	}
	return displays, nil
}

func (s *Service) grab(d DisplayInfo) (*captureResult, error) {
	start := time.Now()
	img, err := s.displays.Capture(d)
	if err != nil || img == nil {
		if err == nil {
			err = errors.New("empty image")
		}
		s.failures.Add(1)
		return nil, &CaptureError{Display: d.Index, Kind: ErrCaptureFailed, Err: err}
	}
	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	at := s.now()
	s.lastCapture.Store(at.UnixNano())
	return &captureResult{display: d, width: img.Rect.Dx(), height: img.Rect.Dy(), img: img, at: at}, nil
}

// CaptureNow captures the displays selected by the current mode and returns
// them as base64 JPEGs. Displays that fail are skipped; the call fails only
// when selection is invalid or nothing could be captured.
func (s *Service) CaptureNow(ctx context.Context) ([]CapturedImage, error) {
	settings := s.Settings()
	displays, err := s.Displays()
	if err != nil {
		return nil, err
	}
	targets, err := Select(displays, settings.Mode)
	if err != nil {
		return nil, err
	}
	out := make([]CapturedImage, 0, len(targets))
	var errs []error
	for _, d := range targets {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.grab(d)
		if err != nil {
			s.logThrottled("capture display", err)
			errs = append(errs, err)
			continue
		}
		data, err := EncodeBase64JPEG(res.img, settings.Quality)
		if err != nil {
			errs = append(errs, &CaptureError{Display: d.Index, Kind: ErrCaptureFailed, Err: err})
			continue
		}
		out = append(out, CapturedImage{Display: d, Data: data, Width: res.width, Height: res.height, CapturedAt: res.at})
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

type captureResult struct {
	display       DisplayInfo
	img           *image.RGBA
	width, height int
	at            time.Time
}

// CaptureCycle captures and saves every enumerated display once. The
// capture mode only narrows CaptureNow. Per-display failures are logged and
// skipped; nothing is returned to the caller.
func (s *Service) CaptureCycle(ctx context.Context) {
	settings := s.Settings()
	displays, err := s.Displays()
	if err != nil {
		s.logThrottled("enumerate displays", err)
		return
	}
	for _, d := range displays {
		if ctx.Err() != nil {
			return
		}
		res, err := s.grab(d)
		if err != nil {
			s.logThrottled("capture display", err)
			continue
		}
		if settings.OutputDir == "" {
			continue
		}
		entry, err := s.save(settings, res)
		if err != nil {
			s.logThrottled("save capture", err)
			continue
		}
		if s.archive != nil {
			if err := s.archive.Record(ctx, entry); err != nil {
				s.logThrottled("archive capture", err)
			}
		}
	}
}

func (s *Service) save(settings Settings, res *captureResult) (ArchiveEntry, error) {
	buf, err := encodeJPEG(res.img, settings.Quality)
	if err != nil {
		return ArchiveEntry{}, &CaptureError{Display: res.display.Index, Kind: ErrSaveFailed, Err: err}
	}
	defer recycleBuffer(buf)
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return ArchiveEntry{}, &CaptureError{Display: res.display.Index, Kind: ErrSaveFailed, Err: err}
	}
	path := filepath.Join(settings.OutputDir, fileName(settings.Prefix, res.display, res.at))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return ArchiveEntry{}, &CaptureError{Display: res.display.Index, Kind: ErrSaveFailed, Err: err}
	}
	s.saved.Add(1)
	return ArchiveEntry{
		DisplayIndex: res.display.Index,
		DisplayName:  res.display.Name,
		Path:         path,
		Width:        res.width,
		Height:       res.height,
		Bytes:        buf.Len(),
		Quality:      settings.Quality,
		CapturedAt:   res.at,
	}, nil
}

// Stats reports capture counters. Loop fields are filled by Scheduler.
func (s *Service) Stats() CaptureStats {
	captures := s.captures.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(s.captureNanos.Load() / captures)
	}
	var last time.Time
	if ns := s.lastCapture.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return CaptureStats{
		Captures:    captures,
		Failures:    s.failures.Load(),
		Saved:       s.saved.Load(),
		AvgCapture:  avg,
		LastCapture: last,
	}
}

func (s *Service) logThrottled(step string, err error) {
	if s.logger != nil && s.errLog.Allow() {
		s.logger.Error("capture", "step", step, "error", err)
	}
}
