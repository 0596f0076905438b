package output

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
)

// Output is the write step of the export pipeline.
// This allows us to swap between different destinations:
// - PPM container to a file or stdout
// - still images (PNG, JPEG, BMP, TIFF), one per frame or one file each
// - MJPEG HTTP preview stream
// - GStreamer encoder subprocess
// - X11 preview window
type Output interface {
	// WriteFrame writes one frame of top-origin RGB8 pixels.
	// Implementations must not retain pix after returning.
	WriteFrame(pix []byte) error

	// Close flushes and releases the destination
	Close() error

	// Name returns a human-readable name for this output type
	Name() string
}

// Config holds common configuration for all output types
type Config struct {
	frame.Dimensions

	// Target is a file path, "-" for stdout, or a printf pattern for sequences
	Target string

	// Format selects the encoder: ppm, png, jpeg, bmp, tiff, sequence, gstreamer, window
	Format string

	// Generator goes into headers that carry a comment
	Generator string

	// Quality applies to lossy encoders (1-100)
	Quality int

	FPS int
}

// Formats lists the accepted values of Config.Format.
var Formats = []string{"ppm", "png", "jpeg", "bmp", "tiff", "sequence", "gstreamer", "window"}

// New opens the output described by cfg.
func New(cfg Config) (Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Format)
	switch format {
	case "", "ppm":
		t := ParseTarget(cfg.Target)
		w, err := t.Open()
		if err != nil {
			return nil, err
		}
		return NewPPMOutput(w, cfg.Dimensions, cfg.Generator), nil
	case "png", "jpeg", "jpg", "bmp", "tiff":
		enc, err := EncoderFor(format, cfg.Quality)
		if err != nil {
			return nil, err
		}
		t := ParseTarget(cfg.Target)
		w, err := t.Open()
		if err != nil {
			return nil, err
		}
		return NewImageOutput(w, cfg.Dimensions, enc), nil
	case "sequence":
		return NewSequenceOutput(cfg.Target, cfg.Dimensions, cfg.Generator, cfg.Quality)
	case "window":
		w, err := NewWindowOutput(cfg.Dimensions, cfg.Generator)
		if err != nil {
			return nil, err
		}
		if err := w.Start(); err != nil {
			w.Close()
			return nil, err
		}
		return w, nil
	case "gstreamer":
		g := NewGStreamerOutput(cfg.Target, cfg.Dimensions, cfg.FPS)
		if err := g.Start(); err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}

// Validate checks the fields every output depends on
func (c Config) Validate() error {
	if err := c.Dimensions.Validate(); err != nil {
		return err
	}
	if c.Target == "" {
		return fmt.Errorf("output target is empty")
	}
	return nil
}
