package debug

// Memory periodic logger enabled in debug mode. Logs the resident set along
// with Go heap stats to correlate native vs heap growth; capture buffers are
// the usual suspect.

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// RunMemLogger logs memory stats every interval until ctx is cancelled.
// Failures to query RSS are logged once and suppressed.
func RunMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var rssErrLogged bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		rss, err := processRSS()
		if err != nil && !rssErrLogged {
			logger.Warn("memlog: rss query failed", slog.String("err", err.Error()))
			rssErrLogged = true
		}
		logger.Info("memstats",
			slog.Int("goroutines", runtime.NumGoroutine()),
			slog.Uint64("heap_alloc", ms.HeapAlloc),
			slog.Uint64("heap_inuse", ms.HeapInuse),
			slog.Uint64("heap_idle", ms.HeapIdle),
			slog.Uint64("heap_sys", ms.HeapSys),
			slog.Uint64("next_gc", ms.NextGC),
			slog.Uint64("rss", rss),
			slog.Uint64("num_gc", uint64(ms.NumGC)),
		)
	}
}
