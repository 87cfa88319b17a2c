package debug

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGoroutineLoggerIncludesProbesAndStops(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunGoroutineLogger(ctx, 10*time.Millisecond, logger, func() []slog.Attr {
			return []slog.Attr{slog.Int("capture_loops", 1)}
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "capture_loops=1") {
		if time.Now().After(deadline) {
			t.Fatalf("probe attribute never logged: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("logger did not stop on cancel")
	}
}

func TestMemLoggerStops(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunMemLogger(ctx, 10*time.Millisecond, logger) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "memstats") {
		if time.Now().After(deadline) {
			t.Fatal("memstats never logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mem logger did not stop on cancel")
	}
}
