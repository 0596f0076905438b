package output

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// WindowOutput shows exported frames in an X11 window
type WindowOutput struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext
	dims   frame.Dimensions
	title  string

	bitsPerPixel uint8
	scanlinePad  uint8
	data         []byte

	running bool
	mu      sync.Mutex
}

// NewWindowOutput connects to $DISPLAY. The window is created by Start.
func NewWindowOutput(dims frame.Dimensions, title string) (*WindowOutput, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, &SinkError{Target: "x11", Err: err}
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	w := &WindowOutput{
		conn:   conn,
		screen: screen,
		dims:   dims,
		title:  title,
	}
	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			w.bitsPerPixel = format.BitsPerPixel
			w.scanlinePad = format.ScanlinePad
			break
		}
	}
	if w.bitsPerPixel != 24 && w.bitsPerPixel != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported pixmap format: %d bpp at depth %d", w.bitsPerPixel, screen.RootDepth)
	}
	return w, nil
}

// Start creates and maps the window
func (w *WindowOutput) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("window already running")
	}

	windowID, err := xproto.NewWindowId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	w.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000, // Black background
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		w.conn,
		w.screen.RootDepth,
		w.window,
		w.screen.Root,
		0, 0,
		uint16(w.dims.Width), uint16(w.dims.Height),
		0,
		xproto.WindowClassInputOutput,
		w.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := w.setTitle(w.title); err != nil {
		logger.WithComponent("window").Warn().Err(err).Msg("Failed to set window title")
	}

	if err := xproto.MapWindowChecked(w.conn, w.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(w.conn, gc, xproto.Drawable(w.window), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	w.gc = gc
	w.conn.Sync()

	w.running = true
	logger.WithComponent("window").Info().
		Str("size", w.dims.String()).
		Uint32("window_id", uint32(w.window)).
		Msg("Preview window created")
	return nil
}

// WriteFrame paints pix into the window
func (w *WindowOutput) WriteFrame(pix []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("window not running")
	}
	if len(pix) < w.dims.Size() {
		return fmt.Errorf("short frame: %d bytes, want %d", len(pix), w.dims.Size())
	}

	w.data = packZPixmap(w.data, pix, w.dims, int(w.bitsPerPixel)/8, int(w.scanlinePad)/8)
	err := xproto.PutImageChecked(
		w.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(w.window),
		w.gc,
		uint16(w.dims.Width), uint16(w.dims.Height),
		0, 0,
		0,
		w.screen.RootDepth,
		w.data,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to put image: %w", err)
	}
	return nil
}

// packZPixmap converts top-origin RGB8 into BGR(X) scanlines padded to
// padBytes, reusing dst when it is large enough
func packZPixmap(dst, pix []byte, dims frame.Dimensions, bytesPerPixel, padBytes int) []byte {
	if padBytes < 1 {
		padBytes = 1
	}
	unpadded := dims.Width * bytesPerPixel
	stride := ((unpadded + padBytes - 1) / padBytes) * padBytes
	if cap(dst) < stride*dims.Height {
		dst = make([]byte, stride*dims.Height)
	}
	dst = dst[:stride*dims.Height]

	for y := 0; y < dims.Height; y++ {
		in := pix[y*dims.RowStride():]
		out := dst[y*stride:]
		for x := 0; x < dims.Width; x++ {
			o := x * bytesPerPixel
			out[o] = in[x*3+2]
			out[o+1] = in[x*3+1]
			out[o+2] = in[x*3]
			if bytesPerPixel == 4 {
				out[o+3] = 0xff
			}
		}
		clear(out[unpadded:stride])
	}
	return dst
}

// setTitle sets _NET_WM_NAME
func (w *WindowOutput) setTitle(title string) error {
	titleAtom, err := w.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := w.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (w *WindowOutput) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(w.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// Close destroys the window and closes the connection
func (w *WindowOutput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		xproto.FreeGC(w.conn, w.gc)
		xproto.DestroyWindow(w.conn, w.window)
		w.conn.Sync()
		w.running = false
		logger.WithComponent("window").Info().Msg("Preview window closed")
	}
	w.conn.Close()
	return nil
}

// Name returns the output type name
func (w *WindowOutput) Name() string {
	return "X11 window"
}
