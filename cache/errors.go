package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLoader is returned by Get on a miss when no Loader was configured.
	ErrNoLoader = errors.New("cache: no loader configured")
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("cache: store closed")
	// ErrLoadTimeout is returned when a backing-store load exceeds LoadTimeout.
	ErrLoadTimeout = errors.New("cache: backing-store load timed out")
)

// LoadError wraps a backing-store failure for one key.
type LoadError[K comparable] struct {
	Type string
	Key  K
	Err  error
}

func (e *LoadError[K]) Error() string {
	return fmt.Sprintf("cache: load %s key %v: %v", e.Type, e.Key, e.Err)
}

func (e *LoadError[K]) Unwrap() error { return e.Err }
