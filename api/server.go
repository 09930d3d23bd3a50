package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/larkspurhq/storefront-backend/pkg/config"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

const shutdownGrace = 15 * time.Second

// Server wraps the storefront HTTP server with its lifecycle.
type Server struct {
	http *http.Server
	logg *logger.Logger
}

// NewServer builds the HTTP server around the supplied handler. The listen
// port comes from PORT when the platform injects one, otherwise from config.
func NewServer(cfg *config.Config, logg *logger.Logger, handler http.Handler) *Server {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	return &Server{
		http: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logg: logg,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is cancelled, then drains in-flight requests before
// returning. A listener error surfaces immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.logg != nil {
		s.logg.Info(context.Background(), "http server draining")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
