package capture

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// X11Source reads a region of the X11 root window
type X11Source struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	x, y   int
	dims   frame.Dimensions
	mu     sync.Mutex
}

// NewX11Source connects to $DISPLAY and captures the region at (x, y) of
// size dims. A zero dims captures the whole screen.
func NewX11Source(x, y int, dims frame.Dimensions) (*X11Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	if dims.Width == 0 && dims.Height == 0 {
		dims = frame.Dimensions{Width: int(screen.WidthInPixels), Height: int(screen.HeightInPixels)}
	}
	if err := dims.Validate(); err != nil {
		conn.Close()
		return nil, err
	}
	if screen.RootDepth != 24 && screen.RootDepth != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported root depth %d", screen.RootDepth)
	}

	logger.WithComponent("x11-source").Debug().
		Uint8("depth", screen.RootDepth).
		Int("x", x).
		Int("y", y).
		Str("size", dims.String()).
		Msg("Connected to X server")

	return &X11Source{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		x:      x,
		y:      y,
		dims:   dims,
	}, nil
}

// ReadPixels grabs the region and stores it bottom row first
func (c *X11Source) ReadPixels(dst []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(dst) < c.dims.Size() {
		return fmt.Errorf("readback buffer too small: %d < %d", len(dst), c.dims.Size())
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(c.x), int16(c.y),
		uint16(c.dims.Width), uint16(c.dims.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to get image: %w", err)
	}

	convertBGRX(dst, reply.Data, c.dims)
	return nil
}

// convertBGRX converts 32bpp BGRX scanlines, top row first, into
// bottom-origin RGB8
func convertBGRX(dst, data []byte, dims frame.Dimensions) {
	stride := dims.RowStride()
	for y := 0; y < dims.Height; y++ {
		out := dst[(dims.Height-1-y)*stride:]
		in := data[y*dims.Width*4:]
		for x := 0; x < dims.Width; x++ {
			i := x * 4
			if i+2 >= len(in) {
				return
			}
			out[x*3] = in[i+2]
			out[x*3+1] = in[i+1]
			out[x*3+2] = in[i]
		}
	}
}

// Dimensions returns the captured region size
func (c *X11Source) Dimensions() frame.Dimensions {
	return c.dims
}

// Name returns the source name
func (c *X11Source) Name() string {
	return "X11"
}

// Close closes the X11 connection
func (c *X11Source) Close() error {
	c.conn.Close()
	return nil
}
