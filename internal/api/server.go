// Package api exposes the HTTP surface of spec.md §4.6/§4.7 over chi,
// grounded on the teacher's internal/api server/routes split.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/transact-messaging/internal/webhook"
)

// Server wraps the chi router and the underlying http.Server lifecycle.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router and wraps it in a Server, grounded on the
// teacher's generous-timeout http.Server configuration (individual
// endpoints here are cheap; the wide timeouts mainly absorb slow clients).
func NewServer(h *Handlers, hc *HealthChecker, in *webhook.Ingestor) *Server {
	router := SetupRoutes(h, hc, in)
	return &Server{handler: router}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, bounded by ctx's deadline.
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
