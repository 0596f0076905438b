package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"time"
)

// FrameInfo describes the frame a widget is drawn onto
type FrameInfo struct {
	Seq  uint64
	Time time.Time
}

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto the provided image at the configured position
	Render(img *image.RGBA, info FrameInfo) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{
		id:      id,
		enabled: true,
		x:       x,
		y:       y,
	}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// GetPosition returns the widget's position
func (w *BaseWidget) GetPosition() (int, int) {
	return w.x, w.y
}

// SetPosition sets the widget's position
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// GetOpacity returns the widget's opacity
func (w *BaseWidget) GetOpacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// BlendImage composites src onto dst with its top-left corner at (x, y),
// scaling src's alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, r, src, sb.Min, mask, image.Point{}, draw.Over)
}

// DrawRectangle draws a filled rectangle with the specified color and opacity
func DrawRectangle(dst *image.RGBA, x, y, width, height int, c color.Color, opacity float64) {
	if opacity <= 0 {
		return
	}
	r := image.Rect(x, y, x+width, y+height)
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, r, &image.Uniform{C: c}, image.Point{}, mask, image.Point{}, draw.Over)
}
