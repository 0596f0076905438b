// Package exporter hands rendered frames from a render loop to a background
// worker that flips them into top-to-bottom order and writes them out.
//
// The producer calls Dump once per completed frame. Dump reads the
// framebuffer into one of two capture buffers and queues it; the worker
// takes the queued buffer, flips it into a private output buffer, frees the
// capture buffer and writes the result. At most one frame is queued at a
// time, so a slow sink throttles the producer instead of dropping frames.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
	"github.com/bryanchriswhite/FrameExport/internal/output"
)

const (
	// DefaultShutdownTimeout bounds Close
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultPollInterval is how often Flush checks for a drained pipeline
	DefaultPollInterval = 2 * time.Millisecond

	// DefaultGenerator is written into the PPM comment line by Open
	DefaultGenerator = "FrameExport"
)

// PixelReader fills dst with the current framebuffer as RGB8 rows, bottom
// row first. dst is exactly Width*Height*3 bytes.
type PixelReader interface {
	ReadPixels(dst []byte) error
}

// FrameWriter consumes one top-origin RGB8 frame. It must not retain pix.
type FrameWriter interface {
	WriteFrame(pix []byte) error
}

// Stats is a snapshot of exporter counters
type Stats struct {
	State     State     `json:"state"`
	Requested uint64    `json:"requested"`
	Written   uint64    `json:"written"`
	Failed    uint64    `json:"failed"`
	Reuses    [2]uint64 `json:"buffer_reuses"`
	// TerminalEntries is 1 once the worker has stopped, 0 before
	TerminalEntries int `json:"terminal_entries"`
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithErrorHandler receives every *WriteError from the worker goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Exporter) {
		e.onError = fn
	}
}

// WithFrameHandler is called from the worker after each successful write.
func WithFrameHandler(fn func(seq uint64)) Option {
	return func(e *Exporter) {
		e.onFrame = fn
	}
}

// WithShutdownTimeout sets how long Close waits for the worker.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.shutdownTimeout = d
		}
	}
}

// WithPollInterval sets the Flush polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// WithGenerator sets the name Open writes into the PPM header.
func WithGenerator(name string) Option {
	return func(e *Exporter) {
		if name != "" {
			e.generator = name
		}
	}
}

// Exporter is one capture session: two capture buffers, one output buffer
// and one worker goroutine.
type Exporter struct {
	dims   frame.Dimensions
	reader PixelReader
	writer FrameWriter

	h    *handoff
	out  []byte
	done chan struct{}

	// produce keeps concurrent Dump calls in call order
	produce sync.Mutex

	// transform turns a bottom-up capture into the top-down output buffer
	transform func(dst, src []byte, d frame.Dimensions)

	onError         func(error)
	onFrame         func(seq uint64)
	shutdownTimeout time.Duration
	pollInterval    time.Duration
	generator       string
	log             *zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func defaults() *Exporter {
	return &Exporter{
		transform:       frame.FlipVertical,
		shutdownTimeout: DefaultShutdownTimeout,
		pollInterval:    DefaultPollInterval,
		generator:       DefaultGenerator,
		log:             logger.WithComponent("exporter"),
	}
}

// New allocates the buffers and starts the worker. If writer is an
// io.Closer, Close closes it.
func New(dims frame.Dimensions, reader PixelReader, writer FrameWriter, opts ...Option) (*Exporter, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if reader == nil || writer == nil {
		return nil, errors.New("exporter needs a pixel reader and a frame writer")
	}

	e := defaults()
	for _, opt := range opts {
		opt(e)
	}
	e.dims = dims
	e.reader = reader
	e.writer = writer
	e.h = newHandoff(dims.Size())
	e.out = make([]byte, dims.Size())
	e.done = make(chan struct{})

	e.log.Info().
		Str("size", dims.String()).
		Int("frame_bytes", dims.Size()).
		Msg("Exporter started")

	go e.run()
	return e, nil
}

// Open creates target ("-" for stdout) and exports to it as a PPM stream.
// It returns a *output.SinkError matching ErrSinkUnavailable when the
// target cannot be opened.
func Open(dims frame.Dimensions, reader PixelReader, target string, opts ...Option) (*Exporter, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	// Only the generator is needed before New
	probe := defaults()
	for _, opt := range opts {
		opt(probe)
	}

	t := output.ParseTarget(target)
	w, err := t.Open()
	if err != nil {
		probe.log.Error().Err(err).Str("target", t.String()).Msg("Failed to open sink")
		return nil, err
	}

	e, err := New(dims, reader, output.NewPPMOutput(w, dims, probe.generator), opts...)
	if err != nil {
		w.Close()
		return nil, err
	}
	e.log.Info().Str("target", t.String()).Msg("Writing PPM frames")
	return e, nil
}

// Dump reads the current framebuffer and queues it for the worker. It
// blocks while the previous frame is still queued or while the next
// capture buffer is being transformed. After shutdown it returns
// ErrStopped and nothing is written.
func (e *Exporter) Dump() error {
	e.produce.Lock()
	defer e.produce.Unlock()

	i, err := e.h.acquire()
	if err != nil {
		return err
	}

	if err := e.reader.ReadPixels(e.h.bufs[i].pix); err != nil {
		e.h.abandon(i)
		return fmt.Errorf("failed to read framebuffer: %w", err)
	}

	seq, err := e.h.publish(i)
	if err != nil {
		return err
	}
	e.log.Trace().Uint64("seq", seq).Int("buffer", i).Msg("Frame queued")
	return nil
}

// Flush waits until every queued frame has been written, the worker has
// stopped, or ctx is done.
func (e *Exporter) Flush(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for !e.h.drained() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop asks the worker to exit and waits for it. A frame still queued is
// discarded; call Flush first to keep it. A frame being written is
// finished. Stop is idempotent and returns ErrShutdownTimeout when ctx ends
// before the worker stops.
func (e *Exporter) Stop(ctx context.Context) error {
	if e.h.requestExit() {
		e.log.Debug().Msg("Shutdown requested")
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.log.Warn().Err(ctx.Err()).Msg("Worker did not stop in time")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Close drains queued frames, stops the worker and closes the writer if it
// is an io.Closer, all within the shutdown timeout. The writer stays open
// if the worker could not be stopped.
func (e *Exporter) Close() error {
	e.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
		defer cancel()

		if err := e.Flush(ctx); err != nil {
			e.log.Warn().Err(err).Msg("Queued frames not drained before shutdown")
		}
		if err := e.Stop(ctx); err != nil {
			e.closeErr = err
			return
		}

		if c, ok := e.writer.(io.Closer); ok {
			if err := c.Close(); err != nil {
				e.closeErr = fmt.Errorf("failed to close output: %w", err)
			}
		}

		s := e.h.stats()
		e.log.Info().
			Uint64("requested", s.Requested).
			Uint64("written", s.Written).
			Uint64("failed", s.Failed).
			Msg("Exporter closed")
	})
	return e.closeErr
}

// Stats returns a snapshot of the exporter counters
func (e *Exporter) Stats() Stats {
	return e.h.stats()
}

// State returns the current handoff state
func (e *Exporter) State() State {
	return e.h.current()
}

// Dimensions returns the frame size
func (e *Exporter) Dimensions() frame.Dimensions {
	return e.dims
}

// Done is closed when the worker has stopped
func (e *Exporter) Done() <-chan struct{} {
	return e.done
}
