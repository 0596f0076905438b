package exporter

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/output"
)

var dims4x2 = frame.Dimensions{Width: 4, Height: 2}

// fakeGPU serves queued framebuffers in order, repeating the last one
type fakeGPU struct {
	mu     sync.Mutex
	frames [][]byte
	next   int
	err    error
}

func (g *fakeGPU) push(pix []byte) {
	g.mu.Lock()
	g.frames = append(g.frames, pix)
	g.mu.Unlock()
}

func (g *fakeGPU) ReadPixels(dst []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	i := g.next
	if i >= len(g.frames) {
		i = len(g.frames) - 1
	} else {
		g.next++
	}
	copy(dst, g.frames[i])
	return nil
}

// counterGPU writes the readback sequence number into every texel
type counterGPU struct {
	n atomic.Uint32
}

func (g *counterGPU) ReadPixels(dst []byte) error {
	v := byte(g.n.Add(1))
	for i := range dst {
		dst[i] = v
	}
	return nil
}

// hashSink records a hash of every frame in arrival order
type hashSink struct {
	mu     sync.Mutex
	hashes [][32]byte
	frames [][]byte
	delay  time.Duration
	fail   func(n int) error
	closed bool
}

func (s *hashSink) WriteFrame(pix []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.frames)
	if s.fail != nil {
		if err := s.fail(n); err != nil {
			s.frames = append(s.frames, nil)
			return err
		}
	}
	s.hashes = append(s.hashes, sha256.Sum256(pix))
	s.frames = append(s.frames, append([]byte(nil), pix...))
	return nil
}

func (s *hashSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *hashSink) snapshot() [][32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][32]byte(nil), s.hashes...)
}

func solid(d frame.Dimensions, r, g, b byte) []byte {
	pix := make([]byte, d.Size())
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return pix
}

func rowColored(d frame.Dimensions, seed byte) []byte {
	pix := make([]byte, d.Size())
	for y := 0; y < d.Height; y++ {
		row := pix[y*d.RowStride() : (y+1)*d.RowStride()]
		for i := range row {
			row[i] = seed + byte(y*16) + byte(i)
		}
	}
	return pix
}

func flipped(pix []byte, d frame.Dimensions) []byte {
	out := make([]byte, len(pix))
	frame.FlipVertical(out, pix, d)
	return out
}

func flush(t *testing.T, e *Exporter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	for _, d := range []frame.Dimensions{{Width: 0, Height: 2}, {Width: 4, Height: -1}} {
		_, err := New(d, &fakeGPU{}, &hashSink{})
		assert.ErrorIs(t, err, ErrInvalidDimensions)
	}
	_, err := New(dims4x2, nil, &hashSink{})
	assert.Error(t, err)
}

func TestFramesWrittenInOrder(t *testing.T) {
	const n = 50
	d := frame.Dimensions{Width: 16, Height: 9}
	gpu := &fakeGPU{}
	var want [][32]byte
	for i := 0; i < n; i++ {
		pix := rowColored(d, byte(i))
		gpu.push(pix)
		want = append(want, sha256.Sum256(flipped(pix, d)))
	}

	sink := &hashSink{}
	var seqs []uint64
	var seqMu sync.Mutex
	e, err := New(d, gpu, sink, WithFrameHandler(func(seq uint64) {
		seqMu.Lock()
		seqs = append(seqs, seq)
		seqMu.Unlock()
	}))
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, e.Dump())
	}
	flush(t, e)
	require.NoError(t, e.Close())

	assert.Equal(t, want, sink.snapshot())
	require.Len(t, seqs, n)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}

	st := e.Stats()
	assert.Equal(t, uint64(n), st.Requested)
	assert.Equal(t, uint64(n), st.Written)
	assert.Zero(t, st.Failed)
	assert.Equal(t, uint64(n), st.Reuses[0]+st.Reuses[1])
	assert.Equal(t, StateStopped, st.State)
	assert.True(t, sink.closed)
}

func TestConcurrentProducersNeverDropOrDuplicate(t *testing.T) {
	d := frame.Dimensions{Width: 3, Height: 3}
	gpu := &counterGPU{}
	sink := &hashSink{}
	e, err := New(d, gpu, sink)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, e.Dump())
			}
		}()
	}
	wg.Wait()
	flush(t, e)
	require.NoError(t, e.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 100)
	// Each readback stamps an increasing counter; the output must preserve it
	for i, f := range sink.frames {
		assert.Equal(t, byte(i+1), f[0], "frame %d", i)
	}
}

func TestFourByTwoScenario(t *testing.T) {
	var buf bytes.Buffer
	out := output.NewPPMOutput(output.NopCloser(&buf), dims4x2, "FrameExport")

	red := solid(dims4x2, 255, 0, 0)
	green := solid(dims4x2, 0, 255, 0)
	blue := solid(dims4x2, 0, 0, 255)
	gpu := &fakeGPU{frames: [][]byte{red, green, blue}}

	e, err := New(dims4x2, gpu, out)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Dump())
	}
	require.NoError(t, e.Close())

	r := bufio.NewReader(&buf)
	for i, want := range [][]byte{red, green, blue} {
		f, err := output.DecodePPM(r)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, dims4x2, f.Dimensions)
		assert.Equal(t, []string{"Generated by FrameExport"}, f.Comments)
		assert.Len(t, f.Pix, 24)
		assert.Equal(t, flipped(want, dims4x2), f.Pix)
	}
	_, err = output.DecodePPM(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRowOrderInverted(t *testing.T) {
	var buf bytes.Buffer
	out := output.NewPPMOutput(output.NopCloser(&buf), dims4x2, "FrameExport")

	// Bottom row red, top row blue in readback order
	pix := append(solid(frame.Dimensions{Width: 4, Height: 1}, 255, 0, 0),
		solid(frame.Dimensions{Width: 4, Height: 1}, 0, 0, 255)...)

	e, err := New(dims4x2, &fakeGPU{frames: [][]byte{pix}}, out)
	require.NoError(t, err)
	require.NoError(t, e.Dump())
	require.NoError(t, e.Close())

	header := output.PPMHeader(dims4x2, "FrameExport")
	assert.Equal(t, "P6\n# Generated by FrameExport\n4 2\n255\n", string(header))
	require.True(t, bytes.HasPrefix(buf.Bytes(), header))

	body := buf.Bytes()[len(header):]
	require.Len(t, body, 24)
	assert.Equal(t, []byte{0, 0, 255}, body[0:3], "first output row is the top (blue)")
	assert.Equal(t, []byte{255, 0, 0}, body[12:15], "last output row is the bottom (red)")
}

func TestOpenRoundTripFile(t *testing.T) {
	d := frame.Dimensions{Width: 7, Height: 5}
	captured := rowColored(d, 3)
	path := filepath.Join(t.TempDir(), "out.ppm")

	e, err := Open(d, &fakeGPU{frames: [][]byte{captured}}, path, WithGenerator("unit"))
	require.NoError(t, err)
	require.NoError(t, e.Dump())
	require.NoError(t, e.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := output.DecodePPM(bufio.NewReader(f))
	require.NoError(t, err)
	assert.Equal(t, d, got.Dimensions)
	assert.Equal(t, []string{"Generated by unit"}, got.Comments)

	back := make([]byte, d.Size())
	frame.FlipVertical(back, got.Pix, d)
	assert.Equal(t, captured, back)
}

func TestOpenSinkUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "out.ppm")
	_, err := Open(dims4x2, &fakeGPU{}, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkUnavailable)

	var sinkErr *output.SinkError
	require.True(t, errors.As(err, &sinkErr))
	assert.Equal(t, path, sinkErr.Target)
}

func TestOpenInvalidDimensionsCreatesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ppm")
	_, err := Open(frame.Dimensions{}, &fakeGPU{}, path)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBackpressureSerializesDumps(t *testing.T) {
	d := frame.Dimensions{Width: 2, Height: 2}
	const delay = 40 * time.Millisecond
	sink := &hashSink{delay: delay}
	e, err := New(d, &counterGPU{}, sink)
	require.NoError(t, err)
	defer e.Close()

	// 1 in flight, 1 queued, the rest wait for the slot
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Dump())
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 3*delay-10*time.Millisecond)

	flush(t, e)
	assert.Len(t, sink.snapshot(), 5)
}

// reuseProbe flags any readback into a buffer that is being transformed
type reuseProbe struct {
	mu        sync.Mutex
	busy      map[*byte]bool
	violation atomic.Bool
	reads     atomic.Int32
}

func (p *reuseProbe) ReadPixels(dst []byte) error {
	p.mu.Lock()
	if p.busy[&dst[0]] {
		p.violation.Store(true)
	}
	p.mu.Unlock()
	v := byte(p.reads.Add(1))
	for i := range dst {
		dst[i] = v
	}
	return nil
}

func (p *reuseProbe) transform(dst, src []byte, d frame.Dimensions) {
	p.mu.Lock()
	p.busy[&src[0]] = true
	p.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	frame.FlipVertical(dst, src, d)

	p.mu.Lock()
	delete(p.busy, &src[0])
	p.mu.Unlock()
}

func TestBufferNeverReusedMidTransform(t *testing.T) {
	d := frame.Dimensions{Width: 8, Height: 8}
	probe := &reuseProbe{busy: map[*byte]bool{}}
	sink := &hashSink{}
	e, err := New(d, probe, sink)
	require.NoError(t, err)
	e.transform = probe.transform

	for i := 0; i < 40; i++ {
		require.NoError(t, e.Dump())
	}
	flush(t, e)
	require.NoError(t, e.Close())

	assert.False(t, probe.violation.Load())
	st := e.Stats()
	assert.Equal(t, uint64(20), st.Reuses[0])
	assert.Equal(t, uint64(20), st.Reuses[1])

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 40)
	for i, f := range sink.frames {
		assert.Equal(t, byte(i+1), f[0])
	}
}

func TestStopRejectsFurtherDumps(t *testing.T) {
	sink := &hashSink{}
	e, err := New(dims4x2, &counterGPU{}, sink)
	require.NoError(t, err)

	require.NoError(t, e.Dump())
	flush(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))

	assert.ErrorIs(t, e.Dump(), ErrStopped)
	assert.ErrorIs(t, e.Dump(), ErrStopped)
	time.Sleep(10 * time.Millisecond)

	assert.Len(t, sink.snapshot(), 1)
	st := e.Stats()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, 1, st.TerminalEntries)
	assert.Equal(t, uint64(1), st.Requested)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, e.Stats().TerminalEntries)
	assert.True(t, sink.closed)
}

func TestStopUnblocksWaitingProducer(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	e, err := New(dims4x2, &counterGPU{}, sink)
	require.NoError(t, err)

	require.NoError(t, e.Dump()) // taken by the worker, blocks in WriteFrame
	require.NoError(t, e.Dump()) // queued

	errCh := make(chan error, 1)
	go func() { errCh <- e.Dump() }() // waits for the slot

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stopErr := make(chan error, 1)
	go func() { stopErr <- e.Stop(ctx) }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after stop")
	}

	close(block)
	require.NoError(t, <-stopErr)
	// The queued frame is discarded by the exit request
	assert.Equal(t, int32(1), sink.writes.Load())
}

type blockingSink struct {
	release chan struct{}
	writes  atomic.Int32
}

func (s *blockingSink) WriteFrame([]byte) error {
	<-s.release
	s.writes.Add(1)
	return nil
}

func TestStopTimesOutOnStuckWriter(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	e, err := New(dims4x2, &counterGPU{}, sink, WithShutdownTimeout(30*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, e.Dump())

	// Wait for the worker to pick the frame up
	require.Eventually(t, func() bool { return e.State() == StateWait }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = e.Stop(ctx)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, e.Close(), ErrShutdownTimeout)

	close(block)
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the writer returned")
	}
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, 1, e.Stats().TerminalEntries)
}

func TestWriteFailureDoesNotStopSession(t *testing.T) {
	boom := errors.New("disk full")
	sink := &hashSink{fail: func(n int) error {
		if n == 1 {
			return boom
		}
		return nil
	}}

	var mu sync.Mutex
	var reported []error
	e, err := New(dims4x2, &counterGPU{}, sink, WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Dump())
	}
	flush(t, e)
	require.NoError(t, e.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrWriteFailure)
	assert.ErrorIs(t, reported[0], boom)

	var we *WriteError
	require.True(t, errors.As(reported[0], &we))
	assert.Equal(t, uint64(2), we.Seq)

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Written)
	assert.Equal(t, uint64(1), st.Failed)
	assert.Len(t, sink.snapshot(), 2)
}

func TestReadbackErrorIsNotPublished(t *testing.T) {
	gpu := &fakeGPU{err: errors.New("context lost")}
	sink := &hashSink{}
	e, err := New(dims4x2, gpu, sink)
	require.NoError(t, err)

	err = e.Dump()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context lost")

	gpu.mu.Lock()
	gpu.err = nil
	gpu.frames = [][]byte{solid(dims4x2, 1, 2, 3)}
	gpu.mu.Unlock()

	require.NoError(t, e.Dump())
	flush(t, e)
	require.NoError(t, e.Close())

	assert.Len(t, sink.snapshot(), 1)
	assert.Equal(t, uint64(1), e.Stats().Requested)
}

func TestFlushRespectsContext(t *testing.T) {
	block := make(chan struct{})
	e, err := New(dims4x2, &counterGPU{}, &blockingSink{release: block})
	require.NoError(t, err)
	require.NoError(t, e.Dump())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Flush(ctx), context.DeadlineExceeded)

	close(block)
	flush(t, e)
	require.NoError(t, e.Close())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "wait", StateWait.String())
	assert.Equal(t, "dump", StateDump.String())
	assert.Equal(t, "exit", StateExit.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())

	text, err := StateStopped.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "stopped", string(text))
}
