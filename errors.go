package spargo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/spargo/checkpoint"
	"github.com/hupe1980/spargo/config"
	"github.com/hupe1980/spargo/sched"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("spargo: session closed")

	// ErrBreakdown is returned when a division in the solver has a zero
	// denominator or a non-finite result and breakdown checks are enabled.
	ErrBreakdown = sched.ErrBreakdown

	// ErrInvalidConfig is returned for unusable configuration.
	ErrInvalidConfig = config.ErrInvalidConfig

	// ErrNotFound is returned when a checkpoint to resume from is missing.
	ErrNotFound = checkpoint.ErrNotFound

	// ErrUnsupportedTarget is returned for checkpoint targets with an
	// unknown scheme.
	ErrUnsupportedTarget = errors.New("spargo: unsupported checkpoint target")
)

// ErrCheckpoint indicates a failed checkpoint save or restore.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrCheckpoint struct {
	Name      string
	Iteration int
	cause     error
}

func (e *ErrCheckpoint) Error() string {
	return fmt.Sprintf("checkpoint %s at iteration %d: %v", e.Name, e.Iteration, e.cause)
}

func (e *ErrCheckpoint) Unwrap() error { return e.cause }
