// Package server provides the HTTP server for the snapview camera.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/log"
	"github.com/ayusman/snapview/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// App is the camera application. Without it only health and static
	// files are served.
	App *app.App
}

// Server represents the HTTP server for the snapview application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger

	// base is the parent of every request context. Shutdown cancels it so
	// long-lived streams end instead of holding the shutdown open.
	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: log.With("component", "server"),
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		camera := api.NewCameraHandler(a)
		s.mux.HandleFunc("/api/status", camera.Status)
		s.mux.HandleFunc("/api/surface", camera.Surface)
		s.mux.HandleFunc("/api/focus", camera.Focus)
		s.mux.HandleFunc("/api/zoom", camera.Zoom)
		s.mux.HandleFunc("/api/switch", camera.Switch)
		s.mux.HandleFunc("/api/capture", camera.Capture)
		s.mux.HandleFunc("/api/capture/confirm", camera.Confirm)
		s.mux.HandleFunc("/api/capture/retry", camera.Retry)

		captures := api.NewCapturesHandler(a)
		s.mux.Handle("/api/captures", captures)
		s.mux.Handle("/api/captures/", captures)

		s.mux.Handle("/api/stream", NewStreamHandler(a, a.FrameInterval()))
		s.mux.Handle("/api/events", NewEventsHandler(a))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["camera"] = s.config.App.Status().Session.State
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown. It returns nil after
// Shutdown.
func (s *Server) Serve(l net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.base
		},
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.http = hs
	s.mu.Unlock()
	s.logger.Info("listening", "addr", l.Addr().String())

	err := hs.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server. Open preview streams are ended first,
// then in-flight requests are waited for until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.http
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}
