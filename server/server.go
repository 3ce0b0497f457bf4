// Package server exposes the grading pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/storage"
	"github.com/RyanBlaney/sonido-grader/transcode"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Server wires the decoder, analyzer and result store behind a chi router
type Server struct {
	cfg      *Config
	analyzer *assessment.Analyzer
	decoder  *transcode.Decoder
	store    storage.ResultStore
	logger   logging.Logger
	router   chi.Router
	now      func() time.Time

	pending sync.WaitGroup // in-flight result saves
}

// Option customises a Server
type Option func(*Server)

// WithStore enables persistence. Without it results are only returned.
func WithStore(store storage.ResultStore) Option {
	return func(s *Server) { s.store = store }
}

// WithDecoder replaces the decoder built from the config
func WithDecoder(decoder *transcode.Decoder) Option {
	return func(s *Server) { s.decoder = decoder }
}

// WithLogger sets the server's logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a server for cfg around analyzer
func New(cfg *Config, analyzer *assessment.Analyzer, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}

	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = &logging.NoOpLogger{}
	}
	if s.decoder == nil {
		s.decoder = transcode.NewDecoder(&cfg.Decoder)
		s.decoder.SetLogger(s.logger.WithFields(logging.Fields{"stage": "decode"}))
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/voice-ranges", s.handleVoiceRanges)
	r.Post("/grade_singing", s.handleGradeSinging)
	r.Get("/users/{user_id}/results", s.handleUserResults)

	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every pending result save has finished
func (s *Server) Wait() {
	s.pending.Wait()
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully and waits for pending saves.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{"addr": s.cfg.Listen})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(err, "HTTP server shutdown failed")
	}
	s.Wait()
	s.logger.Info("HTTP server stopped")
	return nil
}
