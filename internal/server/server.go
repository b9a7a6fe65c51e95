// Package server exposes the dedup engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cj4yoyo1228/daily-ai-news/internal/db/sqlite"
	"github.com/cj4yoyo1228/daily-ai-news/internal/dedup"
	"github.com/cj4yoyo1228/daily-ai-news/internal/embedding"
	"github.com/cj4yoyo1228/daily-ai-news/pkg/models"
)

const (
	// DefaultHTTPTimeout bounds each request, embedding calls included.
	DefaultHTTPTimeout = 60 * time.Second

	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes = 4 << 20

	shutdownTimeout = 10 * time.Second
)

// Deduplicator collapses near-duplicate articles.
type Deduplicator interface {
	ProcessDetailed(ctx context.Context, articles []models.Article) ([]models.Article, dedup.Report, error)
}

// EmbeddingInfo describes the active embedding model.
type EmbeddingInfo interface {
	Name() string
	Version() string
	Dimensions() int
}

// RunReader reads archived runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*sqlite.RunRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]*sqlite.RunRecord, error)
	RunEvents(ctx context.Context, runID string) ([]sqlite.EventRecord, error)
}

// Config wires the server. Embedding and Runs may be nil.
type Config struct {
	Deduplicator Deduplicator
	Embedding    EmbeddingInfo
	Runs         RunReader
	Models       func() []embedding.ModelMetadata
	Addr         string
	Version      string
	MaxBodyBytes int64
	Timeout      time.Duration
	// RateLimit is the per-client dedup request rate per second; 0 disables it.
	RateLimit float64
	RateBurst int
}

// Server is the HTTP front of the dedup engine.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	limiter *RateLimiter
	group   singleflight.Group
	logger  zerolog.Logger
	cfg     Config
}

// New builds the router. Call Run to serve.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	if cfg.Deduplicator == nil {
		return nil, errors.New("server: deduplicator required")
	}
	if cfg.Models == nil {
		cfg.Models = embedding.ListModels
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	s := &Server{
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Timeout))
	s.router.Use(middleware.RealIP)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/models", s.handleModels)

	s.router.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(MaxBodySize(s.cfg.MaxBodyBytes))
		r.Use(RequireJSONContentType)
		r.Post("/api/dedup", s.handleDedup)
	})

	if s.cfg.Runs != nil {
		s.router.Get("/api/runs", s.handleRuns)
		s.router.Get("/api/runs/{id}", s.handleRun)
	}
}

// accessLog logs each request through zerolog.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", GetRequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("Request")
	})
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
