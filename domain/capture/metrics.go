package capture

import "time"

// CaptureStats summarises capture loop behaviour for instrumentation.
type CaptureStats struct {
	LoopsStarted uint64
	LiveLoops    int32
	Cycles       uint64
	Captures     uint64
	Failures     uint64
	Saved        uint64
	AvgCapture   time.Duration
	LastCapture  time.Time
}
