package output

import (
	"errors"
	"fmt"
	"strings"
)

// Tee fans each frame out to several outputs in order.
type Tee []Output

// WriteFrame writes to every output, even after one fails
func (t Tee) WriteFrame(pix []byte) error {
	var errs []error
	for _, o := range t {
		if err := o.WriteFrame(pix); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every output
func (t Tee) Close() error {
	var errs []error
	for _, o := range t {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name returns the output type name
func (t Tee) Name() string {
	names := make([]string, len(t))
	for i, o := range t {
		names[i] = o.Name()
	}
	return "Tee(" + strings.Join(names, ", ") + ")"
}
