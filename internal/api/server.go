// Package api serves the notes index over HTTP.
//
// Routes:
//
//	GET  /api/v1/health  liveness probe
//	POST /api/v1/index   index a directory: {"directory", "file_extensions"}
//	GET  /api/v1/index   summary of what the index holds
//	POST /api/v1/query   answer a question: {"query", "max_results"}
//
// Errors are returned as {"error": "..."} with a status code derived from
// the error: 400 for bad input, 409 while another directory run is active,
// 502 when a model provider fails and 500 otherwise.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/internal/logging"
	"github.com/dshills/whispernote/pkg/types"
)

// shutdownTimeout bounds how long Run waits for in-flight requests
const shutdownTimeout = 5 * time.Second

// Backend is the set of operations the API exposes
type Backend interface {
	IndexDirectory(ctx context.Context, dir string, extensions []string) (indexer.Metrics, error)
	Status(ctx context.Context) (indexer.Metrics, error)
	Query(ctx context.Context, question string, maxResults int) (*types.QueryResult, error)
}

// Server is the HTTP front end of a Backend
type Server struct {
	backend Backend
	router  *gin.Engine
	addr    string
	server  *http.Server
	logger  *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithHandler mounts an extra handler at path for every method
func WithHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.router.Any(path, gin.WrapH(h))
	}
}

// NewServer creates a server listening on addr once Run is called
func NewServer(backend Backend, addr string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	router := gin.New()
	s := &Server{
		backend: backend,
		router:  router,
		addr:    addr,
		logger:  logger.With("component", "api"),
	}
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.POST("/index", s.indexDirectory)
		v1.GET("/index", s.indexStatus)
		v1.POST("/query", s.query)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router for use with httptest or another server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// requestLogger logs one line per request through slog
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
