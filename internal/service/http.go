// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/wneessen/locationd/internal/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func (s *Service) handler() stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/ws", s.stream)
	return mux
}

// serveHTTP serves the metrics and the event stream until ctx is canceled.
func (s *Service) serveHTTP(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTP.Listen, err)
	}
	return s.serve(ctx, listener)
}

func (s *Service) serve(ctx context.Context, listener net.Listener) error {
	srv := &stdhttp.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.stream.Close()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.logger.Error("failed to shut down http server", logger.Err(err))
		}
	}()

	s.logger.Info("serving metrics and event stream", slog.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}
