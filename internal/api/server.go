package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/FrameExport/internal/config"
	"github.com/bryanchriswhite/FrameExport/internal/exporter"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
	"github.com/bryanchriswhite/FrameExport/internal/output"
)

// Version is reported by /api/health
const Version = "0.1.0"

// StatsProvider is satisfied by *exporter.Exporter
type StatsProvider interface {
	Stats() exporter.Stats
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	stats     StatsProvider
	stream    *output.MJPEGOutput
	hub       *Hub
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server. stream may be nil when the live
// preview is disabled.
func NewServer(configMgr *config.Manager, stats StatsProvider, stream *output.MJPEGOutput, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		stats:     stats,
		stream:    stream,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local preview tool
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Live preview
	if s.stream != nil {
		api.HandleFunc("/stream/stats", s.stream.GetStatsHandler()).Methods("GET")
		s.router.HandleFunc("/stream", s.stream.GetHTTPHandler()).Methods("GET")
		s.router.HandleFunc("/viewer", s.stream.GetViewerHandler()).Methods("GET")
	}

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the router wrapped in CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Hub returns the event hub the server streams from
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithComponent("api").Info().
		Str("addr", "http://localhost"+addr).
		Msg("Starting server")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "no export session", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no configuration loaded", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no configuration loaded", http.StatusServiceUnavailable)
		return
	}

	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(events)

	// Detect client close; the read loop owns no data
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if s.stats != nil {
		if err := conn.WriteJSON(map[string]interface{}{"type": "stats", "stats": s.stats.Stats()}); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>FrameExport</title>
    <style>
        body { font-family: sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        code { background: #f5f5f5; padding: 2px 6px; }
    </style>
</head>
<body>
    <h1>FrameExport</h1>
    <ul>
        <li><a href="/api/health">/api/health</a> - Server health check</li>
        <li><a href="/api/stats">/api/stats</a> - Export counters</li>
        <li><a href="/api/config">/api/config</a> - View configuration</li>
        <li><a href="/viewer">/viewer</a> - Live preview</li>
        <li><code>/api/events</code> - WebSocket frame events</li>
    </ul>
</body>
</html>`)
}
