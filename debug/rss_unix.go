//go:build unix

package debug

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// processRSS reads resident pages from /proc/self/statm. Systems without
// procfs fall back to the peak RSS from getrusage.
func processRSS() (uint64, error) {
	if data, err := os.ReadFile("/proc/self/statm"); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) < 2 {
			return 0, fmt.Errorf("statm: unexpected format %q", data)
		}
		pages, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("statm: %w", err)
		}
		return pages * uint64(os.Getpagesize()), nil
	}
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	// peak, not current; darwin reports bytes, the rest KiB
	if runtime.GOOS == "darwin" {
		return uint64(ru.Maxrss), nil
	}
	return uint64(ru.Maxrss) * 1024, nil
}
