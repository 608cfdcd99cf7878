// Package api serves the dashboard's admin HTTP endpoints. It is a thin
// layer over the store: project and goal CRUD, help request responses,
// and read models assembled for the dashboard UI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// maxBodySize caps request bodies at 64 KB.
const maxBodySize = 64 * 1024

// Deps are the server's collaborators.
type Deps struct {
	Store     *store.Store
	Snapshots *snapshot.Writer
	// Groups returns the registered groups keyed by chat JID.
	Groups func() map[string]*store.RegisteredGroup
	// Metrics serves the prometheus exposition endpoint. May be nil.
	Metrics http.Handler
}

// Config tunes the server.
type Config struct {
	Enabled    bool
	ListenAddr string
	GroupsDir  string
	MainFolder string
	Timezone   *time.Location
}

// Server is the admin HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *logger.Logger
	srv    *http.Server
}

// New creates a Server.
func New(cfg Config, deps Deps, log *logger.Logger) *Server {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Server{cfg: cfg, deps: deps, logger: log}
}

// Start begins listening. Returns immediately; the listener runs in a
// background goroutine.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("admin api disabled in config")
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("admin api listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.srv = &http.Server{
		Handler:           http.HandlerFunc(s.route),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin api server error", err)
		}
	}()

	s.logger.Info("admin api started",
		logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// Stop shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping admin api")
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	return err
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.route)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("admin api panic", fmt.Errorf("%v", rec),
				logger.Field{Key: "path", Value: r.URL.Path})
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		}
	}()

	path := r.URL.Path
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == "/projects" && r.Method == http.MethodGet:
		s.getProjects(w)
	case path == "/projects" && r.Method == http.MethodPost:
		s.postProject(w, r)
	case len(parts) == 2 && parts[0] == "projects" && r.Method == http.MethodPut:
		s.putProject(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "projects" && r.Method == http.MethodDelete:
		s.deleteProject(w, parts[1])
	case path == "/goals" && r.Method == http.MethodGet:
		s.getGoals(w)
	case path == "/goals" && r.Method == http.MethodPost:
		s.postGoal(w, r)
	case path == "/requests" && r.Method == http.MethodGet:
		s.getRequests(w)
	case path == "/metrics" && r.Method == http.MethodGet && s.deps.Metrics != nil:
		s.deps.Metrics.ServeHTTP(w, r)
	case len(parts) == 3 && parts[0] == "requests" && parts[2] == "respond" && r.Method == http.MethodPost:
		s.respondToRequest(w, r, parts[1])
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody parses a JSON request body into dst. A false return means a
// response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Failed to read body"})
		return false
	}
	if len(raw) > maxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Body too large"})
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return false
	}
	return true
}
