package output

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// StdoutTarget is the reserved target string for standard output.
const StdoutTarget = "-"

// ErrSinkUnavailable is returned when a destination cannot be opened for writing.
var ErrSinkUnavailable = errors.New("sink unavailable")

// TargetKind distinguishes the two sink variants.
type TargetKind int

const (
	TargetFile TargetKind = iota
	TargetStdout
)

// Target is where encoded bytes go: the process's stdout or a file path.
type Target struct {
	Kind TargetKind
	Path string
}

// ParseTarget maps "-" to stdout and anything else to a file path.
func ParseTarget(s string) Target {
	if s == StdoutTarget {
		return Target{Kind: TargetStdout}
	}
	return Target{Kind: TargetFile, Path: s}
}

func (t Target) String() string {
	if t.Kind == TargetStdout {
		return "stdout"
	}
	return t.Path
}

// SinkError reports a destination that could not be opened.
type SinkError struct {
	Target string
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink unavailable: %s: %v", e.Target, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Is matches ErrSinkUnavailable.
func (e *SinkError) Is(target error) bool { return target == ErrSinkUnavailable }

// Open returns a writer for the target. Files are created or truncated.
// Closing a stdout writer leaves the process's stdout open.
func (t Target) Open() (io.WriteCloser, error) {
	if t.Kind == TargetStdout {
		return nopCloser{os.Stdout}, nil
	}
	if t.Path == "" {
		return nil, &SinkError{Target: t.Path, Err: errors.New("empty path")}
	}
	f, err := os.OpenFile(t.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &SinkError{Target: t.Path, Err: err}
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// NopCloser wraps w so that Close is a no-op. Useful for in-memory sinks.
func NopCloser(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}
