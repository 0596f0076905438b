package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget draws a label. The text may reference {frame} and {time},
// which are replaced with the frame sequence number and wall-clock time.
type TextWidget struct {
	*BaseWidget
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewTextWidget creates a new text widget
func NewTextWidget(id string, config map[string]interface{}) (*TextWidget, error) {
	w := &TextWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		text:       "Text Widget",
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}

	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Expand substitutes frame placeholders into the label text
func (w *TextWidget) Expand(info FrameInfo) string {
	if !strings.Contains(w.text, "{") {
		return w.text
	}
	r := strings.NewReplacer(
		"{frame}", strconv.FormatUint(info.Seq, 10),
		"{time}", info.Time.Format("15:04:05.000"),
	)
	return r.Replace(w.text)
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA, info FrameInfo) error {
	text := w.Expand(info)
	if !w.IsEnabled() || text == "" {
		return nil
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	d := &font.Drawer{Face: face}
	textWidthPx := d.MeasureString(text).Ceil()

	widgetWidth := textWidthPx + w.padding*2
	widgetHeight := lineHeight + w.padding*2

	if w.bgColor != nil {
		DrawRectangle(img, w.x, w.y, widgetWidth, widgetHeight, *w.bgColor, w.opacity)
	}

	// Draw text into a transparent scratch image, then blend with opacity
	textImg := image.NewRGBA(image.Rect(0, 0, textWidthPx, lineHeight))
	textDrawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	textDrawer.DrawString(text)

	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}

// UpdateConfig updates the widget configuration
func (w *TextWidget) UpdateConfig(config map[string]interface{}) error {
	if text, ok := config["text"].(string); ok {
		w.text = text
	}
	if _, ok := config["x"]; ok {
		w.x = getInt(config["x"])
	}
	if _, ok := config["y"]; ok {
		w.y = getInt(config["y"])
	}
	if opacity, ok := config["opacity"].(float64); ok {
		w.SetOpacity(opacity)
	}
	if enabled, ok := config["enabled"].(bool); ok {
		w.SetEnabled(enabled)
	}
	if _, ok := config["padding"]; ok {
		w.padding = getInt(config["padding"])
	}
	if c, ok := parseColor(config["color"]); ok {
		w.textColor = c
	}
	if c, ok := parseColor(config["background"]); ok {
		w.bgColor = &c
	}
	return nil
}

// parseColor reads a {r, g, b, a} map; alpha defaults to opaque
func parseColor(v interface{}) (color.RGBA, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return color.RGBA{}, false
	}
	a := 255
	if _, ok := m["a"]; ok {
		a = getInt(m["a"])
	}
	return color.RGBA{
		R: uint8(getInt(m["r"])),
		G: uint8(getInt(m["g"])),
		B: uint8(getInt(m["b"])),
		A: uint8(a),
	}, true
}

// getInt extracts an integer value from an interface{} that might be int or float64
func getInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case int64:
		return int(val)
	default:
		return 0
	}
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.text = text
}

// GetText returns the current text
func (w *TextWidget) GetText() string {
	return w.text
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Validate ensures the widget configuration is valid
func (w *TextWidget) Validate() error {
	if w.text == "" {
		return fmt.Errorf("text widget requires non-empty text")
	}
	return nil
}
