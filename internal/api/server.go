// Package api exposes the engine over HTTP: JSON in and out, bearer
// auth on everything under /api, and a {"success":true,"value":...} /
// {"error":"..."} response envelope.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/service"
)

// Server is the HTTP front of the engine.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer wires handlers and routes.
func NewServer(svc *service.Service, executor *execution.Executor, apiKey string) *Server {
	handlers := NewHandlers(svc, executor)
	return &Server{handler: SetupRoutes(handlers, apiKey)}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
