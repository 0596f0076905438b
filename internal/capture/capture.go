// Package capture provides framebuffer readers that feed the exporter.
//
// Every source honours the same narrow contract as a GPU readback: fill a
// caller-provided buffer with exactly Width*Height RGB8 texels, bottom row
// first. The exporter flips them into file order.
package capture

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FrameExport/internal/config"
	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
	"github.com/bryanchriswhite/FrameExport/internal/overlay"
)

// Source defines the interface for framebuffer capture backends
type Source interface {
	// ReadPixels fills dst (len >= Dimensions().Size()) with the current
	// frame as bottom-origin RGB8 rows
	ReadPixels(dst []byte) error

	// Dimensions returns the fixed frame size
	Dimensions() frame.Dimensions

	// Name returns a human-readable name for this source
	Name() string

	// Close releases resources held by the source
	Close() error
}

// Kinds lists the accepted values of config.SourceConfig.Kind.
var Kinds = []string{"pattern", "image", "x11"}

// New opens the source selected by cfg.Kind. Overlays are drawn by the
// pattern source only; they may be nil.
func New(cfg config.SourceConfig, overlays *overlay.Manager) (Source, error) {
	dims := frame.Dimensions{Width: cfg.Width, Height: cfg.Height}
	log := logger.WithComponent("capture")

	var (
		src Source
		err error
	)
	switch strings.ToLower(cfg.Kind) {
	case "", "pattern":
		src, err = NewPatternSource(dims, overlays)
	case "image":
		src, err = OpenImageSource(cfg.ImagePath, dims)
	case "x11":
		src, err = NewX11Source(cfg.X, cfg.Y, dims)
	default:
		return nil, fmt.Errorf("unknown capture source: %s", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("source", src.Name()).
		Str("size", src.Dimensions().String()).
		Msg("Capture source ready")
	return src, nil
}
