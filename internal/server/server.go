package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/modsync/internal/server/library"
)

type Server struct {
	config *Config
	server *http.Server
	lib    *library.Library
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	lib, err := library.New(&library.Config{
		Root:          config.Root,
		HashCacheSize: config.HashCacheSize,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		config: config,
		lib:    lib,
		server: &http.Server{
			Addr:              config.Http.Addr,
			Handler:           SetupRoutes(lib),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("modsync server start", "root", s.config.Root)
	defer slog.Info("modsync server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server start error", "error", err)
			errCh <- err
			return
		}
		slog.Info("http server stopped")
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("modsync shutdown signal")
	if err := s.Stop(context.Background()); err != nil {
		slog.Error("modsync shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) runHttpServer() error {
	if s.config.Http.CertFile != "" && s.config.Http.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.Http.Addr, "cert", s.config.Http.CertFile, "key", s.config.Http.KeyFile)
		return s.server.ListenAndServeTLS(s.config.Http.CertFile, s.config.Http.KeyFile)
	}

	slog.Info("server start http", "addr", s.config.Http.Addr)
	return s.server.ListenAndServe()
}
