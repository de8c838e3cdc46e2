// Package api exposes the pipeline over HTTP: request submission,
// approval resume, health, and metrics. Handlers stay thin; everything
// semantic lives in the orchestrator.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/pipeline"
)

// Server is the HTTP front end over the orchestrator.
type Server struct {
	orchestrator *pipeline.Orchestrator
	engine       *gin.Engine
	httpServer   *http.Server
	logger       *slog.Logger
}

// NewServer builds the router and wires the handlers.
func NewServer(orchestrator *pipeline.Orchestrator, addr string) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), securityHeaders())

	s := &Server{
		orchestrator: orchestrator,
		engine:       engine,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: slog.With("component", "api"),
	}

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/requests", s.createRequestHandler)
		v1.POST("/requests/:id/approve", s.approveRequestHandler)
		v1.GET("/health", s.healthHandler)
		v1.GET("/metrics", s.metricsHandler)
	}
	return s
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
