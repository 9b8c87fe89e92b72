package pool

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted matches *ExhaustedError.
	ErrExhausted = errors.New("pool exhausted")
	// ErrClosed is returned by Acquire after Destroy.
	ErrClosed = errors.New("pool closed")
	// ErrNotAcquired is returned when releasing a connection the pool does
	// not consider in use.
	ErrNotAcquired = errors.New("connection not acquired from this pool")
)

// ExhaustedError reports that no connection became available within the
// acquire timeout. Callers may retry.
type ExhaustedError struct {
	Max    int
	Waited time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("pool exhausted: no connection available after %s (max %d)", e.Waited, e.Max)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }
