// Package api implements the tutoring backend's HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahayak/tutor-agent/internal/agent"
	"github.com/sahayak/tutor-agent/internal/buildinfo"
	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/store"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	agent    *agent.Agent
	store    *store.Store
	memories *memory.Store
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates an API server.
func NewServer(address string, port int, ag *agent.Agent, st *store.Store, mem *memory.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		agent:    ag,
		store:    st,
		memories: mem,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Conversations
	mux.HandleFunc("POST /v1/conversations", s.handleConversationCreate)
	mux.HandleFunc("GET /v1/conversations", s.handleConversationList)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleConversationGet)
	mux.HandleFunc("PATCH /v1/conversations/{id}", s.handleConversationRename)
	mux.HandleFunc("DELETE /v1/conversations", s.handleConversationDeleteAll)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleConversationDelete)

	// Turns and history
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleChat)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleMessages)
	mux.HandleFunc("GET /v1/conversations/{id}/export", s.handleExport)

	// Learner administration
	mux.HandleFunc("GET /v1/learners/{id}/memories", s.handleMemoriesList)
	mux.HandleFunc("DELETE /v1/learners/{id}/memories", s.handleMemoriesDelete)
	mux.HandleFunc("GET /v1/learners/{id}/stats", s.handleLearnerStats)
	mux.HandleFunc("GET /v1/learners/{id}/settings/model", s.handleModelSettingsGet)
	mux.HandleFunc("PUT /v1/learners/{id}/settings/model", s.handleModelSettingsPut)

	// Utilities
	mux.HandleFunc("POST /v1/enhance-prompt", s.handleEnhancePrompt)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // turns can span several model calls
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "tutord",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}
