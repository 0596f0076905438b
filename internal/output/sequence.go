package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
)

// SequenceOutput writes every frame to its own file, named from a printf
// pattern such as "shots/frame-%05d.png". The extension picks the format.
type SequenceOutput struct {
	pattern   string
	dims      frame.Dimensions
	generator string
	enc       Encoder // nil means PPM
	next      int
}

// NewSequenceOutput validates the pattern and checks the directory is writable.
func NewSequenceOutput(pattern string, dims frame.Dimensions, generator string, quality int) (*SequenceOutput, error) {
	if !strings.Contains(pattern, "%") {
		return nil, fmt.Errorf("sequence pattern %q has no frame number verb", pattern)
	}

	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &SinkError{Target: pattern, Err: err}
	}
	probe, err := os.CreateTemp(dir, ".frameexport-probe-*")
	if err != nil {
		return nil, &SinkError{Target: pattern, Err: err}
	}
	probe.Close()
	os.Remove(probe.Name())

	s := &SequenceOutput{
		pattern:   pattern,
		dims:      dims,
		generator: generator,
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(pattern)), ".")
	if ext != "" && ext != "ppm" {
		enc, err := EncoderFor(ext, quality)
		if err != nil {
			return nil, err
		}
		s.enc = enc
	}
	return s, nil
}

// Path returns the file name used for frame n
func (s *SequenceOutput) Path(n int) string {
	return fmt.Sprintf(s.pattern, n)
}

// WriteFrame writes the next numbered file
func (s *SequenceOutput) WriteFrame(pix []byte) error {
	path := s.Path(s.next)
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var out Output
	if s.enc == nil {
		out = NewPPMOutput(f, s.dims, s.generator)
	} else {
		out = NewImageOutput(f, s.dims, s.enc)
	}

	werr := out.WriteFrame(pix)
	cerr := out.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.next++
	return nil
}

// Close is a no-op; every frame file is closed after it is written
func (s *SequenceOutput) Close() error {
	return nil
}

// Name returns the output type name
func (s *SequenceOutput) Name() string {
	return "Sequence"
}
