package frame

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensions(t *testing.T) {
	d := Dimensions{Width: 4, Height: 2}
	assert.Equal(t, 12, d.RowStride())
	assert.Equal(t, 24, d.Size())
	assert.Equal(t, "4x2", d.String())
	assert.NoError(t, d.Validate())
}

func TestDimensionsValidate(t *testing.T) {
	tests := []struct {
		name string
		d    Dimensions
	}{
		{"zero width", Dimensions{0, 10}},
		{"zero height", Dimensions{10, 0}},
		{"negative", Dimensions{-1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.d.Validate(), ErrInvalidDimensions)
		})
	}
}

func TestFlipVerticalReversesRows(t *testing.T) {
	d := Dimensions{Width: 2, Height: 3}
	src := []byte{
		1, 1, 1, 1, 1, 1,
		2, 2, 2, 2, 2, 2,
		3, 3, 3, 3, 3, 3,
	}
	dst := make([]byte, d.Size())
	FlipVertical(dst, src, d)
	assert.Equal(t, []byte{
		3, 3, 3, 3, 3, 3,
		2, 2, 2, 2, 2, 2,
		1, 1, 1, 1, 1, 1,
	}, dst)
}

func TestFlipVerticalIsInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, d := range []Dimensions{{1, 1}, {4, 2}, {3, 5}, {17, 9}, {64, 1}} {
		t.Run(d.String(), func(t *testing.T) {
			x := make([]byte, d.Size())
			rng.Read(x)
			once := make([]byte, d.Size())
			twice := make([]byte, d.Size())
			FlipVertical(once, x, d)
			FlipVertical(twice, once, d)
			assert.Equal(t, x, twice)
		})
	}
}

func TestRGBAConversions(t *testing.T) {
	d := Dimensions{Width: 2, Height: 2}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 1, color.RGBA{R: 40, G: 50, B: 60, A: 255})

	topDown := make([]byte, d.Size())
	FromRGBA(topDown, img, d, false)
	assert.Equal(t, []byte{10, 20, 30, 0, 0, 0, 0, 0, 0, 40, 50, 60}, topDown)

	bottomUp := make([]byte, d.Size())
	FromRGBA(bottomUp, img, d, true)
	flipped := make([]byte, d.Size())
	FlipVertical(flipped, bottomUp, d)
	assert.Equal(t, topDown, flipped)

	back := ToRGBA(topDown, d)
	require.Equal(t, img.Bounds(), back.Bounds())
	assert.Equal(t, color.RGBA{R: 40, G: 50, B: 60, A: 255}, back.RGBAAt(1, 1))
	assert.Equal(t, uint8(255), back.RGBAAt(1, 0).A)
}
