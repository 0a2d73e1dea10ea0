package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/veildoc/veildoc/internal/audit"
	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/logger"
	"github.com/veildoc/veildoc/internal/pipeline"
	"github.com/veildoc/veildoc/internal/ws"
	"go.uber.org/zap"
)

// Server exposes the redaction pipeline over HTTP.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline *pipeline.Pipeline
	hub      *ws.Hub
	audit    *audit.Store
	router   *mux.Router
	server   *http.Server
}

// New creates the HTTP server and wires the pipeline, progress hub and
// optional audit store.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	pipe, err := pipeline.New(cfg, log.WithComponent("pipeline").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		pipeline: pipe,
		router:   mux.NewRouter(),
	}

	if cfg.WebSocket.Enabled {
		s.hub = ws.NewHub(&cfg.WebSocket, log.WithComponent("ws").Logger)
	}
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(&cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		s.audit = store
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/mask/manual", s.handleManualMask).Methods("POST")
	api.HandleFunc("/restore", s.handleRestore).Methods("POST")
	api.HandleFunc("/tasks/{id}/files/{name}", s.handleDownload).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start starts the HTTP server and the progress hub.
func (s *Server) Start() error {
	s.logger.Info("Starting veildoc server",
		zap.Int("port", s.config.Server.Port),
		zap.String("work_dir", s.config.WorkDir),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.hub != nil))

	if s.hub != nil {
		go s.hub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and releases pipeline resources.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping veildoc server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.logger.Warn("Failed to close audit store", zap.Error(err))
		}
	}
	return s.pipeline.Close()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":               "veildoc",
		"version":            "0.1.0",
		"enabled_categories": s.config.Privacy.EnabledCategories,
		"audit_enabled":      s.audit != nil,
		"websocket_enabled":  s.hub != nil,
	})
}
