package inference

import (
	"errors"
	"fmt"
	"time"
)

// ErrWorkerClosed is returned once a worker has been shut down.
var ErrWorkerClosed = errors.New("inference: worker closed")

// ThrottleError is returned when a backend asks us to slow down.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// RemoteError is an error reported by the model process itself.
type RemoteError struct {
	Op  string
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("python worker error (%s): %s", e.Op, e.Msg)
}
