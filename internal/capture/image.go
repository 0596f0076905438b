package capture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
)

// ImageSource serves the same still image for every frame, scaled to the
// frame size.
type ImageSource struct {
	dims   frame.Dimensions
	pixels []byte // bottom-origin RGB8
	name   string
}

// OpenImageSource decodes a PNG, JPEG, GIF, BMP or TIFF file
func OpenImageSource(path string, dims frame.Dimensions) (*ImageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	s, err := NewImageSource(img, dims)
	if err != nil {
		return nil, err
	}
	s.name = fmt.Sprintf("Image (%s, %s)", format, path)
	return s, nil
}

// NewImageSource scales img to dims with Catmull-Rom resampling
func NewImageSource(img image.Image, dims frame.Dimensions) (*ImageSource, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	if img.Bounds().Size() == canvas.Bounds().Size() {
		xdraw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	}

	s := &ImageSource{
		dims:   dims,
		pixels: make([]byte, dims.Size()),
		name:   "Image",
	}
	frame.FromRGBA(s.pixels, canvas, dims, true)
	return s, nil
}

// ReadPixels copies the prepared still into dst
func (s *ImageSource) ReadPixels(dst []byte) error {
	if len(dst) < len(s.pixels) {
		return fmt.Errorf("readback buffer too small: %d < %d", len(dst), len(s.pixels))
	}
	copy(dst, s.pixels)
	return nil
}

// Dimensions returns the frame size
func (s *ImageSource) Dimensions() frame.Dimensions {
	return s.dims
}

// Name returns the source name
func (s *ImageSource) Name() string {
	return s.name
}

// Close is a no-op
func (s *ImageSource) Close() error {
	return nil
}
