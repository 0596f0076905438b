package exporter

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/output"
)

// Sentinel errors returned by the exporter.
var (
	// ErrSinkUnavailable is returned by Open when the output file cannot be
	// created or opened for writing.
	ErrSinkUnavailable = output.ErrSinkUnavailable

	// ErrWriteFailure matches every *WriteError passed to the error handler.
	ErrWriteFailure = errors.New("frame write failed")

	// ErrShutdownTimeout is returned by Stop and Close when the worker does
	// not reach StateStopped before the deadline.
	ErrShutdownTimeout = errors.New("exporter shutdown timed out")

	// ErrStopped is returned by Dump once shutdown has been requested.
	ErrStopped = errors.New("exporter stopped")

	// ErrInvalidDimensions is returned by New for a non-positive frame size.
	ErrInvalidDimensions = frame.ErrInvalidDimensions
)

// WriteError reports a frame the sink rejected. The session continues.
type WriteError struct {
	Seq uint64
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write frame %d: %v", e.Seq, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports ErrWriteFailure as a match
func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }
