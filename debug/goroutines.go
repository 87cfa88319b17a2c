package debug

// Goroutine metrics logger, run only when debug is enabled. The capture
// scheduler must never leave more than one loop behind, so goroutine counts
// are logged next to the component counters handed in by the caller.

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// Probe contributes extra attributes to each debug line.
type Probe func() []slog.Attr

// RunGoroutineLogger logs goroutine count and stack memory every interval
// until ctx is cancelled.
func RunGoroutineLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, probes ...Probe) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		metrics.Read(samples)
		var goroutines uint64
		if samples[0].Value.Kind() == metrics.KindUint64 {
			goroutines = samples[0].Value.Uint64()
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		attrs := []any{
			slog.Uint64("goroutines", goroutines),
			slog.Uint64("stack_inuse", ms.StackInuse),
			slog.Uint64("stack_sys", ms.StackSys),
			slog.Uint64("heap_alloc", ms.HeapAlloc),
		}
		for _, p := range probes {
			for _, a := range p() {
				attrs = append(attrs, a)
			}
		}
		logger.Info("goroutine-stacks", attrs...)
	}
}
