package sched

import (
	"errors"
	"fmt"

	"github.com/hupe1980/spargo/space"
)

var (
	// ErrTaskFailed is matched by every error caused by a failed point task,
	// including failures inherited through dependences.
	ErrTaskFailed = errors.New("sched: task failed")

	// ErrBreakdown reports a zero divisor or a non-finite scalar when
	// breakdown detection is enabled.
	ErrBreakdown = errors.New("sched: numerical breakdown")

	// ErrClosed is returned for launches submitted after Close.
	ErrClosed = errors.New("sched: runtime closed")
)

// TaskError describes the first point task that failed.
type TaskError struct {
	Task  string
	Color space.Point
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("sched: task %s at color %s failed: %v", e.Task, e.Color, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is makes every TaskError match ErrTaskFailed.
func (e *TaskError) Is(target error) bool { return target == ErrTaskFailed }

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
