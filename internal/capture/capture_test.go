package capture

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/FrameExport/internal/config"
	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/overlay"
)

func TestPatternSourceAnimates(t *testing.T) {
	dims := frame.Dimensions{Width: 32, Height: 16}
	src, err := NewPatternSource(dims, nil)
	require.NoError(t, err)

	a := make([]byte, dims.Size())
	b := make([]byte, dims.Size())
	require.NoError(t, src.ReadPixels(a))
	require.NoError(t, src.ReadPixels(b))
	assert.NotEqual(t, a, b)

	assert.Error(t, src.ReadPixels(make([]byte, 3)))
}

func TestPatternSourceIsBottomUp(t *testing.T) {
	dims := frame.Dimensions{Width: 14, Height: 12}
	src, err := NewPatternSource(dims, nil)
	require.NoError(t, err)

	pix := make([]byte, dims.Size())
	require.NoError(t, src.ReadPixels(pix))

	top := make([]byte, dims.Size())
	frame.FromRGBA(top, src.Render(0), dims, false)
	flipped := make([]byte, dims.Size())
	frame.FlipVertical(flipped, pix, dims)
	assert.Equal(t, top, flipped)
}

func TestPatternSourceDrawsOverlays(t *testing.T) {
	dims := frame.Dimensions{Width: 64, Height: 32}
	plain, err := NewPatternSource(dims, nil)
	require.NoError(t, err)

	m := overlay.NewManager()
	w, err := overlay.NewTextWidget("label", map[string]interface{}{
		"text":       "#{frame}",
		"background": map[string]interface{}{"r": 0, "g": 0, "b": 0},
	})
	require.NoError(t, err)
	require.NoError(t, m.AddWidget(w))
	labelled, err := NewPatternSource(dims, m)
	require.NoError(t, err)

	a := make([]byte, dims.Size())
	b := make([]byte, dims.Size())
	require.NoError(t, plain.ReadPixels(a))
	require.NoError(t, labelled.ReadPixels(b))
	assert.NotEqual(t, a, b)
}

func TestBounce(t *testing.T) {
	assert.Equal(t, 0, bounce(0, 10))
	assert.Equal(t, 10, bounce(10, 10))
	assert.Equal(t, 8, bounce(12, 10))
	assert.Equal(t, 0, bounce(20, 10))
	assert.Equal(t, 0, bounce(5, 0))
}

func TestImageSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(0, 1, color.RGBA{0, 0, 255, 255})
	img.SetRGBA(1, 1, color.RGBA{0, 0, 255, 255})

	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	dims := frame.Dimensions{Width: 2, Height: 2}
	src, err := OpenImageSource(path, dims)
	require.NoError(t, err)
	assert.Contains(t, src.Name(), "png")

	pix := make([]byte, dims.Size())
	require.NoError(t, src.ReadPixels(pix))
	// Bottom row (blue) comes first
	assert.Equal(t, []byte{0, 0, 255, 0, 0, 255, 255, 0, 0, 255, 0, 0}, pix)
}

func TestImageSourceScales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	dims := frame.Dimensions{Width: 3, Height: 5}
	src, err := NewImageSource(img, dims)
	require.NoError(t, err)

	pix := make([]byte, dims.Size())
	require.NoError(t, src.ReadPixels(pix))
	for _, v := range pix {
		assert.InDelta(t, 0x80, int(v), 1)
	}
}

func TestOpenImageSourceMissing(t *testing.T) {
	_, err := OpenImageSource(filepath.Join(t.TempDir(), "nope.png"), frame.Dimensions{Width: 1, Height: 1})
	assert.Error(t, err)
}

func TestConvertBGRX(t *testing.T) {
	dims := frame.Dimensions{Width: 1, Height: 2}
	data := []byte{
		1, 2, 3, 0, // top: B=1 G=2 R=3
		4, 5, 6, 0, // bottom
	}
	dst := make([]byte, dims.Size())
	convertBGRX(dst, data, dims)
	assert.Equal(t, []byte{6, 5, 4, 3, 2, 1}, dst)
}

func TestNewSelectsSource(t *testing.T) {
	src, err := New(config.SourceConfig{Kind: "pattern", Width: 8, Height: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Test pattern", src.Name())
	assert.Equal(t, frame.Dimensions{Width: 8, Height: 4}, src.Dimensions())
	require.NoError(t, src.Close())

	_, err = New(config.SourceConfig{Kind: "webcam", Width: 8, Height: 4}, nil)
	assert.Error(t, err)

	_, err = New(config.SourceConfig{Kind: "pattern"}, nil)
	assert.ErrorIs(t, err, frame.ErrInvalidDimensions)
}
