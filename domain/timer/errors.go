package timer

import "fmt"

// LockError reports that the state lock could not be acquired for one
// command, or that the command panicked while holding it. The lock itself is
// always released, so re-issuing the command may succeed.
type LockError struct {
	Op    string
	Cause error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("timer: failed to acquire lock for %s: %v", e.Op, e.Cause)
}

func (e *LockError) Unwrap() error { return e.Cause }
