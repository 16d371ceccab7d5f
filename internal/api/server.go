// IoT Sentinel - Streaming Risk and Response Engine for IoT Device Fleets
// Copyright 2026 V. A. Dubey (vadubey78945-spec)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vadubey78945-spec/iot-sentinel

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vadubey78945-spec/iot-sentinel/internal/config"
	"github.com/vadubey78945-spec/iot-sentinel/internal/logging"
)

// shutdownGrace is how long in-flight requests get to finish once the
// context is canceled.
const shutdownGrace = 10 * time.Second

// Server runs the HTTP listener as a suture-supervised service.
type Server struct {
	cfg     config.ServerConfig
	handler http.Handler
}

// NewServer wraps the assembled router in a supervisable service.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{cfg: cfg, handler: handler}
}

// Serve starts the listener and blocks until the context is canceled or
// the listener fails. Cancelation drains in-flight requests before
// returning ctx.Err().
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		IdleTimeout:       2 * s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		logging.Info().Str("component", "http-server").Msg("http server stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "http-server"
}
