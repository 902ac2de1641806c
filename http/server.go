// Package http serves the prediction form, the JSON API and metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"powercast/monitoring"
)

// Server owns the listening http.Server.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig holds listener and middleware settings.
type ServerConfig struct {
	Port         int
	Timeout      time.Duration
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
}

// DefaultServerConfig listens on port 5000 with a 30s request timeout.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         5000,
		Timeout:      30 * time.Second,
		RateBurst:    20,
		MaxBodyBytes: 1 << 20,
	}
}

// NewServer builds the server; it does not start listening.
func NewServer(config ServerConfig, handlers *Handlers, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(config, handlers, metrics, logger),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout + 5*time.Second,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// NewRouter registers all routes and wraps them in the middleware chain.
func NewRouter(config ServerConfig, handlers *Handlers, metrics *monitoring.Metrics, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.Register(mux)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	chain := Chain(
		RecoveryMiddleware(logger), // outermost, catches panics
		SecurityHeadersMiddleware,
		RequestSizeMiddleware(config.MaxBodyBytes),
		RateLimitMiddleware(config.RateLimit, config.RateBurst),
		TimeoutMiddleware(config.Timeout),
		LoggerMiddleware(logger, metrics), // next to the mux so r.Pattern is visible
	)
	return chain(mux)
}

// Start blocks serving until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts down gracefully, waiting up to 5s for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
