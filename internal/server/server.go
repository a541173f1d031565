// Package server exposes the run engine over HTTP: submit a run, poll its
// status, fetch the finished trace, and scrape metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexous-ai/nexous/internal/observability"
	"github.com/nexous-ai/nexous/internal/runner"
	"github.com/nexous-ai/nexous/internal/trace"
)

// runState is the lifecycle of one submitted run.
type runState struct {
	RunID     string     `json:"run_id"`
	Status    string     `json:"status"`
	Project   string     `json:"project"`
	TracePath string     `json:"trace_path,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Server serves the run API. Runs execute in background goroutines; the
// preset directory and trace root are fixed at construction.
type Server struct {
	presetDir string
	traceRoot string
	useLLM    bool
	log       *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	mu   sync.Mutex
	runs map[string]*runState
}

// Config configures a Server.
type Config struct {
	PresetDir string
	TraceRoot string
	UseLLM    bool
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		presetDir: cfg.PresetDir,
		traceRoot: cfg.TraceRoot,
		useLLM:    cfg.UseLLM,
		log:       logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		runs:      make(map[string]*runState),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/trace", s.handleGetTrace)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

type createRunRequest struct {
	ProjectPath string `json:"project_path"`
	RunID       string `json:"run_id,omitempty"`
	UseLLM      *bool  `json:"use_llm,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ProjectPath == "" {
		writeError(w, http.StatusBadRequest, "project_path is required")
		return
	}

	useLLM := s.useLLM
	if req.UseLLM != nil {
		useLLM = *req.UseLLM
	}
	runID := req.RunID
	if runID == "" {
		runID = runner.NewRunID(time.Now().UTC())
	}

	s.mu.Lock()
	if _, exists := s.runs[runID]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, fmt.Sprintf("run %q already exists", runID))
		return
	}
	state := &runState{
		RunID:     runID,
		Status:    string(trace.RunRunning),
		Project:   req.ProjectPath,
		StartedAt: time.Now().UTC(),
	}
	s.runs[runID] = state
	s.mu.Unlock()

	go s.execute(req.ProjectPath, runID, useLLM)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(state)
}

// execute runs one project in the background and records the outcome.
func (s *Server) execute(projectPath, runID string, useLLM bool) {
	r := runner.New(runner.Options{
		ProjectPath: projectPath,
		PresetDir:   s.presetDir,
		TraceRoot:   s.traceRoot,
		RunID:       runID,
		UseLLM:      useLLM,
		Logger:      s.log,
		Metrics:     s.metrics,
		Tracer:      s.tracer,
	})
	outcome, err := r.Run(context.Background())

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.runs[runID]
	state.EndedAt = &now
	if err != nil {
		state.Status = string(trace.RunFailed)
		state.Error = err.Error()
		return
	}
	state.Status = string(trace.RunCompleted)
	state.TracePath = outcome.TracePath
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if state.TracePath == "" {
		writeError(w, http.StatusConflict, "trace not available yet")
		return
	}
	t, err := trace.Load(state.TracePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load trace: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) lookup(id string) (runState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[id]
	if !ok {
		return runState{}, false
	}
	return *state, true
}

// ListenAndServe serves until ctx is cancelled, then drains with a bounded
// shutdown window.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
