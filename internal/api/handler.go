package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/channelrelay/relay/internal/service"
)

// Controller is the relay surface served by the admin API
type Controller interface {
	Status(ctx context.Context) *service.Status
	Channels(ctx context.Context) ([]service.ChannelStatus, error)
	Pause() bool
	Resume() bool
}

// Server provides the admin HTTP API, metrics and the MCP endpoint
type Server struct {
	controller Controller
	registry   *prometheus.Registry
	mcpHandler http.Handler
	logger     *slog.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server. registry and mcpHandler may be nil.
func NewServer(controller Controller, registry *prometheus.Registry, mcpHandler http.Handler, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		controller: controller,
		registry:   registry,
		mcpHandler: mcpHandler,
		addr:       addr,
		logger:     logger.With("component", "api"),
	}
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Relay control
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/resume", s.handleResume)

	// Metrics
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// MCP tools
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.controller.Status(r.Context()))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channels, err := s.controller.Channels(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := make([]service.ChannelStatus, 0, len(channels))
		for _, ch := range channels {
			if ch.State == state {
				filtered = append(filtered, ch)
			}
		}
		channels = filtered
	}
	s.writeJSON(w, map[string]interface{}{"channels": channels})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	changed := s.controller.Pause()
	s.logger.Info("pause requested", "changed", changed)
	s.writeJSON(w, map[string]interface{}{"paused": true, "changed": changed})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	changed := s.controller.Resume()
	s.logger.Info("resume requested", "changed", changed)
	s.writeJSON(w, map[string]interface{}{"paused": false, "changed": changed})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
