package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
)

// Trigger starts a run without waiting for it. It fails once the service is draining.
type Trigger interface {
	Trigger(ctx context.Context) error
}

// Server provides HTTP endpoints for health, run history and triggering runs.
type Server struct {
	monitor *Monitor
	runs    storage.RunRepository
	trigger Trigger
	baseCtx context.Context
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new health server. Runs started through POST /runs use
// baseCtx, not the request context, so they outlive the request.
func NewServer(
	baseCtx context.Context,
	monitor *Monitor,
	runs storage.RunRepository,
	trigger Trigger,
	port int,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		monitor: monitor,
		runs:    runs,
		trigger: trigger,
		baseCtx: baseCtx,
		log:     log.With("component", "http"),
	}

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/health", s.handleHealth)
	router.HandlerFunc(http.MethodGet, "/health/detailed", s.handleDetailed)
	router.HandlerFunc(http.MethodGet, "/runs", s.handleListRuns)
	router.HandlerFunc(http.MethodPost, "/runs", s.handleTrigger)
	router.HandlerFunc(http.MethodGet, "/runs/:id", s.handleGetRun) // "latest" is reserved
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "endpoint not found"})
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.trigger.Trigger(s.baseCtx); err != nil {
		s.log.Warn("Run rejected", "remote", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		return
	}
	s.log.Info("Run triggered", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")

	get := s.runs.Get
	if id == "latest" {
		get = func(ctx context.Context, _ string) (*domain.Record, error) { return s.runs.Latest(ctx) }
	}

	rec, err := get(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		s.log.Error("Failed to get run", "run_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
