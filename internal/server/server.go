// Package server publishes the generated site over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/euforicio/sitegen/internal/config"
	"github.com/euforicio/sitegen/internal/metrics"
	"github.com/euforicio/sitegen/internal/rebuild"
)

// StatusProvider reports the state of the rebuild worker.
type StatusProvider interface {
	Status() rebuild.Status
}

// Options wires optional collaborators into the server.
type Options struct {
	Status  StatusProvider
	Metrics *metrics.Recorder
}

// Server serves files from the output root. It knows nothing about builds beyond
// the fact that files may change between requests.
type Server struct {
	mux        *http.ServeMux
	handler    http.Handler
	files      http.FileSystem
	fileServer http.Handler
	logger     *slog.Logger
	status     StatusProvider
	metrics    *metrics.Recorder
	cfg        config.Config

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New constructs a Server over cfg.OutputDir.
func New(cfg config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	files := http.Dir(cfg.OutputDir)
	s := &Server{
		mux:        http.NewServeMux(),
		files:      files,
		fileServer: http.FileServer(files),
		logger:     logger.With("component", "http"),
		status:     opts.Status,
		metrics:    opts.Metrics,
		cfg:        cfg,
	}
	s.registerRoutes()
	s.handler = chain(s.mux,
		recoveryMiddleware(s.logger),
		gzipMiddleware,
		loggingMiddleware(s.logger, cfg.Verbose),
	)
	return s, nil
}

// registerRoutes reserves /_/healthz, /_/status and /_/metrics; every other path,
// including other files under /_/, is served from the output root.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /_/healthz", s.handleHealth)
	s.mux.HandleFunc("GET /_/status", s.handleStatus)
	s.mux.Handle("GET /_/metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /", s.handleSite)
}

// ServeHTTP dispatches a request through the middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on cfg.Addr and serves until ctx is canceled or the server fails.
// Cancellation triggers a graceful shutdown bounded by five seconds.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("serving site", slog.String("url", "http://"+listener.Addr().String()), slog.String("root", s.cfg.OutputDir))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		respondJSON(w, http.StatusNotFound, errorResponse("status unavailable"))
		return
	}
	respondJSON(w, http.StatusOK, s.status.Status())
}

// handleSite serves the output tree. Missing and forbidden files are left to
// http.FileServer; any other I/O failure is reported as a 500 carrying the error.
func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)

	f, err := s.files.Open(name)
	if err == nil {
		_, err = f.Stat()
		_ = f.Close()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
		s.logger.ErrorContext(r.Context(), "serve file failed", slog.String("path", name), slog.Any("err", err))
		http.Error(w, fmt.Sprintf("Unhandled internal error: %v", err), http.StatusInternalServerError)
		return
	}

	s.fileServer.ServeHTTP(w, r)
}
