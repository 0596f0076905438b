package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FrameExport/internal/frame"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// MJPEGOutput streams exported frames as Motion JPEG over HTTP.
// It is a live preview: slow clients skip frames, the export itself never waits on them.
type MJPEGOutput struct {
	dims    frame.Dimensions
	quality int
	running bool
	mu      sync.RWMutex

	// Latest encoded frame, served to clients as soon as they connect
	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount atomic.Uint64
	startTime  time.Time
}

// MJPEGStats is the JSON body served by the stats handler
type MJPEGStats struct {
	Running    bool    `json:"running"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Frames     uint64  `json:"frames"`
	FPS        float64 `json:"fps"`
	Clients    int     `json:"clients"`
	LastUpdate string  `json:"last_update,omitempty"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(dims frame.Dimensions, quality int) *MJPEGOutput {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &MJPEGOutput{
		dims:    dims,
		quality: quality,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
// Note: The HTTP handler is registered separately via GetHTTPHandler()
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount.Store(0)

	logger.WithComponent("mjpeg").Info().
		Str("size", m.dims.String()).
		Msg("MJPEG output started")
	return nil
}

// Stop disconnects all clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	// Close all client connections
	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount.Load()).
		Msg("MJPEG output stopped")
	return nil
}

// Close stops the output
func (m *MJPEGOutput) Close() error {
	return m.Stop()
}

// WriteFrame encodes a frame and sends it to all connected clients
func (m *MJPEGOutput) WriteFrame(pix []byte) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame.ToRGBA(pix, m.dims), &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.frameCount.Add(1)

	// Broadcast to all clients
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2) // Buffer 2 frames

		// Prime the client with the latest frame so it does not wait for the next dump
		m.frameMu.RLock()
		if m.lastJPEG != nil {
			frameChan <- m.lastJPEG
		}
		m.frameMu.RUnlock()

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			if _, ok := m.clients[frameChan]; ok {
				delete(m.clients, frameChan)
			}
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		ctx := r.Context()
		for {
			var jpegData []byte
			var ok bool
			select {
			case <-ctx.Done():
				return
			case jpegData, ok = <-frameChan:
				if !ok {
					return
				}
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// GetViewerHandler returns an HTTP handler with a bare page embedding the stream
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>FrameExport</title>
    <style>
        body { margin: 0; background: #000; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        img { max-width: 100vw; max-height: 100vh; object-fit: contain; image-rendering: pixelated; }
    </style>
</head>
<body>
    <img src="/stream" alt="FrameExport live preview">
</body>
</html>`)
	}
}

// Stats returns a snapshot of stream statistics
func (m *MJPEGOutput) Stats() MJPEGStats {
	m.mu.RLock()
	running := m.running
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	frames := m.frameCount.Load()
	s := MJPEGStats{
		Running: running,
		Width:   m.dims.Width,
		Height:  m.dims.Height,
		Frames:  frames,
		Clients: m.ClientCount(),
	}
	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			s.FPS = float64(frames) / elapsed
		}
	}
	if !lastUpdate.IsZero() {
		s.LastUpdate = lastUpdate.Format(time.RFC3339Nano)
	}
	return s
}

// GetStatsHandler returns an HTTP handler that shows stream statistics as JSON
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
