// Package api exposes the review queue and pipeline statistics over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/review"
	"github.com/ledgerline/ledgerline/internal/service"
)

// Config holds API server configuration.
type Config struct {
	Port int
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{Port: 8080}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	store      service.Storage
	manager    *review.Manager
}

// NewServer creates a new API server.
func NewServer(cfg Config, store service.Storage, manager *review.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		logger:  logger,
		store:   store,
		manager: manager,
	}

	s.router.Use(Logging(logger))
	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/review", s.handleListReview)
		r.Get("/review/{id}", s.handleGetReview)
		r.Post("/review/{id}/approve", s.handleApprove)
		r.Post("/review/{id}/reject", s.handleReject)
		r.Post("/review/{id}/accept-match", s.handleAcceptMatch)
		r.Get("/stats", s.handleStats)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
