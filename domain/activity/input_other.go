//go:build !linux && !windows

package activity

// NewPlatform has no backend here.
func NewPlatform() (Primitive, error) { return nil, ErrUnsupported }
