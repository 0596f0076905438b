package output

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
)

// Encoder writes one image in some container format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	Extension() string
}

// EncoderFor returns the encoder for a format name. Quality only affects jpeg.
func EncoderFor(format string, quality int) (Encoder, error) {
	switch strings.ToLower(format) {
	case "png":
		return pngEncoder{}, nil
	case "jpeg", "jpg":
		if quality < 1 {
			quality = 1
		}
		if quality > 100 {
			quality = 100
		}
		return jpegEncoder{quality: quality}, nil
	case "bmp":
		return bmpEncoder{}, nil
	case "tiff", "tif":
		return tiffEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
}

type pngEncoder struct{}

func (pngEncoder) Encode(w io.Writer, img image.Image) error { return png.Encode(w, img) }
func (pngEncoder) Extension() string                         { return ".png" }

type jpegEncoder struct {
	quality int
}

func (e jpegEncoder) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality})
}
func (jpegEncoder) Extension() string { return ".jpg" }

type bmpEncoder struct{}

func (bmpEncoder) Encode(w io.Writer, img image.Image) error { return bmp.Encode(w, img) }
func (bmpEncoder) Extension() string                         { return ".bmp" }

type tiffEncoder struct{}

func (tiffEncoder) Encode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}
func (tiffEncoder) Extension() string { return ".tiff" }

// ImageOutput encodes every frame as a still image onto one sink, back to back.
type ImageOutput struct {
	w      *bufio.Writer
	closer io.Closer
	dims   frame.Dimensions
	enc    Encoder
}

// NewImageOutput creates an output writing enc-encoded frames to w
func NewImageOutput(w io.WriteCloser, dims frame.Dimensions, enc Encoder) *ImageOutput {
	return &ImageOutput{
		w:      bufio.NewWriter(w),
		closer: w,
		dims:   dims,
		enc:    enc,
	}
}

// WriteFrame encodes one frame and flushes it
func (o *ImageOutput) WriteFrame(pix []byte) error {
	if err := o.enc.Encode(o.w, frame.ToRGBA(pix, o.dims)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", o.enc.Extension(), err)
	}
	return o.w.Flush()
}

// Close flushes and closes the sink
func (o *ImageOutput) Close() error {
	return errors.Join(o.w.Flush(), o.closer.Close())
}

// Name returns the output type name
func (o *ImageOutput) Name() string {
	return "Image (" + strings.TrimPrefix(o.enc.Extension(), ".") + ")"
}
