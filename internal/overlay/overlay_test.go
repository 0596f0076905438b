package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func black(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func countNonBlack(img *image.RGBA) int {
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 || img.Pix[i+1] != 0 || img.Pix[i+2] != 0 {
			n++
		}
	}
	return n
}

func TestTextWidgetExpand(t *testing.T) {
	w, err := NewTextWidget("label", map[string]interface{}{"text": "frame {frame} @ {time}"})
	require.NoError(t, err)

	ts := time.Date(2024, 1, 2, 13, 14, 15, 16_000_000, time.UTC)
	assert.Equal(t, "frame 42 @ 13:14:15.016", w.Expand(FrameInfo{Seq: 42, Time: ts}))
}

func TestTextWidgetRequiresText(t *testing.T) {
	_, err := NewTextWidget("empty", map[string]interface{}{"text": ""})
	assert.Error(t, err)
}

func TestTextWidgetRenders(t *testing.T) {
	w, err := NewTextWidget("label", map[string]interface{}{
		"text":  "HELLO",
		"x":     2,
		"y":     float64(3),
		"color": map[string]interface{}{"r": 255, "g": 255, "b": 255},
	})
	require.NoError(t, err)
	x, y := w.GetPosition()
	assert.Equal(t, 2, x)
	assert.Equal(t, 3, y)

	img := black(80, 30)
	require.NoError(t, w.Render(img, FrameInfo{}))
	assert.Greater(t, countNonBlack(img), 10)

	// Nothing is drawn above or left of the padded origin
	for py := 0; py < 3+5; py++ {
		for px := 0; px < 80; px++ {
			assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(px, py))
		}
	}
}

func TestTextWidgetDisabledOrTransparent(t *testing.T) {
	w, err := NewTextWidget("label", map[string]interface{}{"text": "X", "opacity": 0.0})
	require.NoError(t, err)
	img := black(20, 20)
	require.NoError(t, w.Render(img, FrameInfo{}))
	assert.Zero(t, countNonBlack(img))

	w.SetOpacity(1)
	w.SetEnabled(false)
	require.NoError(t, w.Render(img, FrameInfo{}))
	assert.Zero(t, countNonBlack(img))
}

func TestDrawRectangleClips(t *testing.T) {
	img := black(4, 4)
	DrawRectangle(img, 2, 2, 10, 10, color.RGBA{255, 0, 0, 255}, 1)
	assert.Equal(t, 4, countNonBlack(img))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 1))
}

func TestBlendImageHalfOpacity(t *testing.T) {
	img := black(1, 1)
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{200, 100, 0, 255})
	BlendImage(img, src, 0, 0, 0.5)
	got := img.RGBAAt(0, 0)
	assert.InDelta(t, 100, int(got.R), 2)
	assert.InDelta(t, 50, int(got.G), 2)
	assert.Equal(t, uint8(255), got.A)
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]map[string]interface{}{
		{"type": "text", "id": "a", "text": "A"},
		{"type": "text", "id": "b", "text": "B"},
		{"type": "text", "id": "a", "text": "dup"},
		{"type": "clock", "id": "c"},
		{"id": "no-type"},
	})
	assert.Equal(t, 2, m.Len())

	_, ok := m.GetWidget("b")
	assert.True(t, ok)
	require.NoError(t, m.RemoveWidget("b"))
	assert.Error(t, m.RemoveWidget("b"))
	assert.Equal(t, 1, m.Len())

	img := black(40, 30)
	m.SetEnabled(false)
	m.Render(img, FrameInfo{})
	assert.Zero(t, countNonBlack(img))

	m.SetEnabled(true)
	m.Render(img, FrameInfo{})
	assert.NotZero(t, countNonBlack(img))
}
