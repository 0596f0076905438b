// Package frame holds the pixel layout shared by capture sources, the
// exporter and its outputs: tightly packed RGB8 rows with no padding.
package frame

import (
	"errors"
	"fmt"
	"image"
)

// BytesPerPixel is the size of one RGB8 texel.
const BytesPerPixel = 3

// ErrInvalidDimensions is returned for frames with a non-positive side.
var ErrInvalidDimensions = errors.New("invalid frame dimensions")

// Dimensions is the fixed size of every frame an exporter handles.
type Dimensions struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// RowStride returns the number of bytes in one row.
func (d Dimensions) RowStride() int {
	return d.Width * BytesPerPixel
}

// Size returns the number of bytes in one frame.
func (d Dimensions) Size() int {
	return d.Height * d.RowStride()
}

// Validate reports whether both sides are positive.
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, d.Width, d.Height)
	}
	return nil
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// FlipVertical copies src into dst with the row order reversed, turning a
// bottom-origin readback into top-origin file order (and back).
// Both slices must hold at least d.Size() bytes and must not overlap.
func FlipVertical(dst, src []byte, d Dimensions) {
	stride := d.RowStride()
	for y := 0; y < d.Height; y++ {
		srcRow := (d.Height - 1 - y) * stride
		copy(dst[y*stride:(y+1)*stride], src[srcRow:srcRow+stride])
	}
}

// ToRGBA expands top-origin RGB8 pixels into an opaque RGBA image.
func ToRGBA(pix []byte, d Dimensions) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	n := d.Width * d.Height
	for i := 0; i < n; i++ {
		s := i * BytesPerPixel
		o := i * 4
		img.Pix[o] = pix[s]
		img.Pix[o+1] = pix[s+1]
		img.Pix[o+2] = pix[s+2]
		img.Pix[o+3] = 0xff
	}
	return img
}

// FromRGBA packs img into dst as RGB8, dropping alpha. When bottomUp is
// set the last image row is written first, matching a GPU readback.
func FromRGBA(dst []byte, img *image.RGBA, d Dimensions, bottomUp bool) {
	stride := d.RowStride()
	for y := 0; y < d.Height; y++ {
		row := y
		if bottomUp {
			row = d.Height - 1 - y
		}
		out := dst[row*stride : (row+1)*stride]
		in := img.Pix[y*img.Stride:]
		for x := 0; x < d.Width; x++ {
			i := x * 4
			out[x*3] = in[i]
			out[x*3+1] = in[i+1]
			out[x*3+2] = in[i+2]
		}
	}
}
