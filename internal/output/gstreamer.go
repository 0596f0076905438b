package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// GStreamerOutput pipes raw frames into a gst-launch-1.0 subprocess that
// encodes them to H.264 in an MP4 container.
// This avoids CGO by running the pipeline as a separate process
type GStreamerOutput struct {
	path    string
	dims    frame.Dimensions
	fps     int
	command string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  io.ReadCloser
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewGStreamerOutput creates an encoder output writing to path
func NewGStreamerOutput(path string, dims frame.Dimensions, fps int) *GStreamerOutput {
	if fps <= 0 {
		fps = 30
	}
	return &GStreamerOutput{
		path:    path,
		dims:    dims,
		fps:     fps,
		command: "gst-launch-1.0",
	}
}

// PipelineArgs returns the gst-launch pipeline as argv elements.
// Frames arrive top-origin RGB on stdin; -e makes EOS finalize the MP4 on close.
// The target path is a single element so it never passes through a shell.
func (g *GStreamerOutput) PipelineArgs() []string {
	sink := []string{"filesink", "location=" + g.path}
	if g.path == StdoutTarget {
		sink = []string{"fdsink", "fd=1"}
	}
	args := []string{
		"fdsrc", "fd=0", fmt.Sprintf("blocksize=%d", g.dims.Size()), "!",
		"rawvideoparse", "format=rgb",
		fmt.Sprintf("width=%d", g.dims.Width),
		fmt.Sprintf("height=%d", g.dims.Height),
		fmt.Sprintf("framerate=%d/1", g.fps), "!",
		"videoconvert", "!",
		"x264enc", "tune=zerolatency", "speed-preset=veryfast", "!",
		"mp4mux", "!",
	}
	return append(args, sink...)
}

// Pipeline returns the pipeline description for logging
func (g *GStreamerOutput) Pipeline() string {
	return strings.Join(g.PipelineArgs(), " ")
}

// Start launches the subprocess
func (g *GStreamerOutput) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("pipeline already running")
	}

	log := logger.WithComponent("gstreamer")

	if _, err := exec.LookPath(g.command); err != nil {
		return &SinkError{Target: g.path, Err: fmt.Errorf("%s not found: %w", g.command, err)}
	}

	log.Debug().Str("pipeline", g.Pipeline()).Msg("Starting GStreamer subprocess")

	// gst-launch splits on ! itself
	g.cmd = exec.Command(g.command, append([]string{"-q", "-e"}, g.PipelineArgs()...)...)

	stdin, err := g.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	g.stdin = stdin

	stderr, err := g.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	g.stderr = stderr

	if err := g.cmd.Start(); err != nil {
		return &SinkError{Target: g.path, Err: fmt.Errorf("failed to start %s: %w", g.command, err)}
	}

	g.running = true
	g.done = make(chan struct{})

	go g.logStderr()

	log.Info().
		Str("path", g.path).
		Int("pid", g.cmd.Process.Pid).
		Msg("GStreamer subprocess started")

	return nil
}

// logStderr logs any errors from the GStreamer subprocess
func (g *GStreamerOutput) logStderr() {
	defer close(g.done)
	log := logger.WithComponent("gstreamer")
	scanner := bufio.NewScanner(g.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// WriteFrame feeds one raw frame to the encoder
func (g *GStreamerOutput) WriteFrame(pix []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return fmt.Errorf("GStreamer output not running")
	}
	_, err := g.stdin.Write(pix[:g.dims.Size()])
	return err
}

// Close sends EOS by closing stdin and waits for the muxer to finish the file
func (g *GStreamerOutput) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false

	log := logger.WithComponent("gstreamer")

	cerr := g.stdin.Close()

	// stderr drains before Wait so the pipe is not closed under the scanner
	select {
	case <-g.done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("GStreamer did not finish after EOS, killing")
		g.cmd.Process.Kill()
	}
	werr := g.cmd.Wait()

	log.Info().Str("path", g.path).Msg("GStreamer subprocess stopped")
	return errors.Join(cerr, werr)
}

// Name returns the output type name
func (g *GStreamerOutput) Name() string {
	return "GStreamer (H.264/MP4)"
}
