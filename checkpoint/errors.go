package checkpoint

import "errors"

var (
	// ErrNotFound is returned when no checkpoint exists under a name or
	// prefix.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrCorrupt is returned when a blob fails magic, version, length or
	// checksum validation.
	ErrCorrupt = errors.New("checkpoint: corrupt")

	// ErrMismatch is returned when restoring into regions whose bounds or
	// fields differ from the checkpoint.
	ErrMismatch = errors.New("checkpoint: region mismatch")
)
