// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/subtrackd/subtrackd/internal/config"
	"github.com/subtrackd/subtrackd/internal/logging"
)

// shutdownGrace bounds graceful shutdown once the context is cancelled.
const shutdownGrace = 10 * time.Second

// Server is the HTTP server as a supervisable service.
type Server struct {
	addr    string
	handler http.Handler
}

// NewServer creates the API server service.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		handler: handler,
	}
}

// Serve runs the HTTP server until the context is cancelled. The
// signature satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
