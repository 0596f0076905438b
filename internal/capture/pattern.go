package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/overlay"
)

// barColors are the classic SMPTE-style bars
var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// PatternSource renders an animated test pattern in software: scrolling
// color bars, a bouncing box and any overlay widgets. Each ReadPixels call
// renders the next frame, standing in for a real-time render loop.
type PatternSource struct {
	dims     frame.Dimensions
	canvas   *image.RGBA
	overlays *overlay.Manager
	seq      uint64
	now      func() time.Time
}

// NewPatternSource creates a test pattern of the given size
func NewPatternSource(dims frame.Dimensions, overlays *overlay.Manager) (*PatternSource, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &PatternSource{
		dims:     dims,
		canvas:   image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height)),
		overlays: overlays,
		now:      time.Now,
	}, nil
}

// Render draws frame number seq onto the canvas
func (p *PatternSource) Render(seq uint64) *image.RGBA {
	w, h := p.dims.Width, p.dims.Height
	barWidth := (w + len(barColors) - 1) / len(barColors)
	shift := int(seq % uint64(w))

	for x := 0; x < w; x++ {
		c := barColors[((x+shift)%w)/barWidth]
		for y := 0; y < h; y++ {
			p.canvas.SetRGBA(x, y, c)
		}
	}

	box := max(min(w, h)/6, 1)
	bx := bounce(int(seq)*3, w-box)
	by := bounce(int(seq)*2, h-box)
	draw.Draw(p.canvas, image.Rect(bx, by, bx+box, by+box),
		&image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	if p.overlays != nil {
		p.overlays.Render(p.canvas, overlay.FrameInfo{Seq: seq, Time: p.now()})
	}
	return p.canvas
}

// bounce maps a monotonically growing position onto [0, span] back and forth
func bounce(pos, span int) int {
	if span <= 0 {
		return 0
	}
	period := 2 * span
	pos %= period
	if pos > span {
		return period - pos
	}
	return pos
}

// ReadPixels renders the next frame and reads it back bottom row first
func (p *PatternSource) ReadPixels(dst []byte) error {
	if len(dst) < p.dims.Size() {
		return fmt.Errorf("readback buffer too small: %d < %d", len(dst), p.dims.Size())
	}
	img := p.Render(p.seq)
	p.seq++
	frame.FromRGBA(dst, img, p.dims, true)
	return nil
}

// Dimensions returns the frame size
func (p *PatternSource) Dimensions() frame.Dimensions {
	return p.dims
}

// Name returns the source name
func (p *PatternSource) Name() string {
	return "Test pattern"
}

// Close is a no-op
func (p *PatternSource) Close() error {
	return nil
}
