// Package gateway exposes the chat API over HTTP: synchronous turn
// execution, session lifecycle, artifact downloads, health, and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/artifacts"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/orchestrator"
	"github.com/haasonsaas/relay/pkg/models"
)

// TurnRunner executes one reconciled turn against a thread.
type TurnRunner interface {
	RunTurn(ctx context.Context, query, threadID string) (*orchestrator.TurnResult, error)
}

// SessionManager is the session lifecycle surface the handlers need.
type SessionManager interface {
	GetOrCreate(ctx context.Context, id string) (*models.Session, error)
	Reset(ctx context.Context, id string) (*models.Session, error)
	WithTurn(ctx context.Context, id string, fn func(session *models.Session) error) error
}

// Config holds the HTTP listener settings.
type Config struct {
	Host string
	Port int
}

// Server is the HTTP gateway.
type Server struct {
	config    Config
	sessions  SessionManager
	runner    TurnRunner
	artifacts *artifacts.Service
	metrics   *observability.Metrics
	logger    *slog.Logger

	httpServer *http.Server
}

// NewServer creates a Server. artifacts may be nil, in which case image
// inlining and file downloads are disabled.
func NewServer(config Config, sessions SessionManager, runner TurnRunner, artifactSvc *artifacts.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		sessions:  sessions,
		runner:    runner,
		artifacts: artifactSvc,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/chat", s.instrument("/api/chat", s.handleChat))
	mux.HandleFunc("POST /api/new-session", s.instrument("/api/new-session", s.handleNewSession))
	mux.HandleFunc("POST /api/clear-session", s.instrument("/api/clear-session", s.handleClearSession))
	mux.HandleFunc("GET /api/download-file/{id}", s.instrument("/api/download-file", s.handleDownloadFile))

	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next(w, r)
			return
		}
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)

		s.metrics.HTTPRequestCounter.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	}
}
