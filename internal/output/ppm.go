package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
)

// MaxChannelValue is the only channel depth written and accepted.
const MaxChannelValue = 255

// MaxFrameBytes bounds the raster DecodePPM will allocate for one frame.
const MaxFrameBytes = 1 << 30

// ErrBadPPM is returned by DecodePPM for malformed input.
var ErrBadPPM = errors.New("malformed ppm")

// PPMOutput writes each frame as a complete binary PPM (P6) container.
type PPMOutput struct {
	w      *bufio.Writer
	closer io.Closer
	header []byte
	dims   frame.Dimensions
}

// NewPPMOutput builds the header once; every WriteFrame emits header + pixels.
func NewPPMOutput(w io.WriteCloser, dims frame.Dimensions, generator string) *PPMOutput {
	return &PPMOutput{
		w:      bufio.NewWriterSize(w, 64*1024),
		closer: w,
		header: PPMHeader(dims, generator),
		dims:   dims,
	}
}

// PPMHeader returns "P6\n# Generated by <generator>\n<w> <h>\n255\n".
func PPMHeader(dims frame.Dimensions, generator string) []byte {
	// The comment must stay on one line
	generator = strings.NewReplacer("\r", " ", "\n", " ").Replace(generator)
	return []byte(fmt.Sprintf("P6\n# Generated by %s\n%d %d\n%d\n",
		generator, dims.Width, dims.Height, MaxChannelValue))
}

// WriteFrame writes one container and flushes it to the underlying sink
func (p *PPMOutput) WriteFrame(pix []byte) error {
	if len(pix) < p.dims.Size() {
		return fmt.Errorf("short frame: %d bytes, want %d", len(pix), p.dims.Size())
	}
	if _, err := p.w.Write(p.header); err != nil {
		return err
	}
	if _, err := p.w.Write(pix[:p.dims.Size()]); err != nil {
		return err
	}
	return p.w.Flush()
}

// Close flushes buffered data and closes the sink
func (p *PPMOutput) Close() error {
	ferr := p.w.Flush()
	cerr := p.closer.Close()
	return errors.Join(ferr, cerr)
}

// Name returns the output type name
func (p *PPMOutput) Name() string {
	return "PPM"
}

// PPMFrame is one decoded container.
type PPMFrame struct {
	frame.Dimensions
	Comments []string
	Pix      []byte
}

// DecodePPM reads one P6 container from r. It returns io.EOF when r is
// exhausted before the magic token, so it can be called in a loop over a
// stream of concatenated frames.
func DecodePPM(r *bufio.Reader) (*PPMFrame, error) {
	magic := make([]byte, 2)
	if _, err := io.ReadFull(r, magic); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading magic: %v", ErrBadPPM, err)
	}
	if string(magic) != "P6" {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadPPM, magic)
	}

	f := &PPMFrame{}
	var fields [3]int
	for i := range fields {
		tok, err := nextToken(r, &f.Comments)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad header field %q", ErrBadPPM, tok)
		}
		fields[i] = n
	}
	if fields[2] != MaxChannelValue {
		return nil, fmt.Errorf("%w: unsupported max value %d", ErrBadPPM, fields[2])
	}
	if fields[0] > MaxFrameBytes/frame.BytesPerPixel/fields[1] {
		return nil, fmt.Errorf("%w: frame %dx%d exceeds %d bytes", ErrBadPPM, fields[0], fields[1], MaxFrameBytes)
	}
	f.Width, f.Height = fields[0], fields[1]

	// Exactly one whitespace byte separates the header from the raster,
	// and nextToken already consumed it.
	f.Pix = make([]byte, f.Size())
	if _, err := io.ReadFull(r, f.Pix); err != nil {
		return nil, fmt.Errorf("%w: reading raster: %v", ErrBadPPM, err)
	}
	return f, nil
}

// nextToken skips whitespace and comment lines and returns the next
// header token, consuming the single whitespace byte that ends it.
func nextToken(r *bufio.Reader, comments *[]string) (string, error) {
	var tok []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("%w: truncated header: %v", ErrBadPPM, err)
		}
		switch {
		case c == '#' && len(tok) == 0:
			line, err := r.ReadString('\n')
			if err != nil {
				return "", fmt.Errorf("%w: truncated comment: %v", ErrBadPPM, err)
			}
			*comments = append(*comments, trimComment(line))
		case isSpace(c):
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func trimComment(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	for len(line) > 0 && line[0] == ' ' {
		line = line[1:]
	}
	return line
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\v' || c == '\f'
}
