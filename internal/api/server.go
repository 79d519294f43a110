// Package api exposes the HTTP interface for the lead pipeline service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/metrics"
)

// Runner executes one pipeline pass. Satisfied by pipeline.Runner.
type Runner interface {
	Run(ctx context.Context) leads.RunReport
}

// RunStatus describes the most recent pass.
type RunStatus struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Output    leads.RunReport `json:"output"`
	Timestamp time.Time       `json:"timestamp"`
}

// Server wires HTTP handlers to the pipeline runner. A single pass runs at a
// time: the trigger endpoint rejects concurrent requests instead of queueing
// them.
type Server struct {
	router chi.Router
	runner Runner
	clock  leads.Clock
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	lastRun *RunStatus
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, clock leads.Clock, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		clock:  clock,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/run-search", s.runSearch)
		r.Get("/status", s.status)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runSearch(w http.ResponseWriter, _ *http.Request) {
	if !s.tryStart() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "busy",
			"message": "a search run is already in progress",
		})
		return
	}

	// The pass outlives the triggering request on purpose: clients poll
	// /api/status for the outcome.
	go s.runPass(context.Background())

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "search run started",
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	payload := map[string]any{
		"is_running": s.running,
		"last_run":   s.lastRun,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Server) runPass(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("pass panicked", zap.Any("panic", rec))
			s.finish(RunStatus{
				Status:    "failed",
				Message:   fmt.Sprintf("pass panicked: %v", rec),
				Timestamp: s.clock.Now(),
			})
		}
	}()

	report := s.runner.Run(ctx)

	status := "completed"
	message := fmt.Sprintf("persisted %d new cards (%d duplicates, %d filtered), enriched %d",
		report.Persisted, report.Duplicates, report.Filtered, report.Enriched)
	if report.Errors > 0 || report.EnrichErrors > 0 {
		status = "completed_with_errors"
		message = fmt.Sprintf("%s; %d store errors, %d enrichment errors",
			message, report.Errors, report.EnrichErrors)
	}

	s.finish(RunStatus{
		Status:    status,
		Message:   message,
		Output:    report,
		Timestamp: s.clock.Now(),
	})
}

func (s *Server) finish(status RunStatus) {
	s.mu.Lock()
	s.running = false
	s.lastRun = &status
	s.mu.Unlock()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", duration))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors past this point cannot be reported to the client.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
