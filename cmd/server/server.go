package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/JaimeStill/tayyib/internal/api"
	"github.com/JaimeStill/tayyib/internal/config"
	"github.com/JaimeStill/tayyib/internal/infrastructure"
)

// Server owns the screening service: shared infrastructure, the mounted
// API module and the HTTP listener bound to them.
type Server struct {
	infra           *infrastructure.Infrastructure
	http            *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	router := newRouter(infra)
	router.Mount(apiModule)

	return &Server{
		infra: infra,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeoutDuration(),
			ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
			WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
		},
		logger:          infra.Logger.With("system", "http"),
		shutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
	}, nil
}

// Start binds the listener before returning so a busy port fails startup
// instead of surfacing later in a goroutine.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}

	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()

	lc := s.infra.Lifecycle
	lc.OnShutdown(func() {
		<-lc.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("drain failed", "error", err)
			return
		}
		s.logger.Info("listener closed")
	})

	go func() {
		if err := lc.WaitForStartup(); err != nil {
			s.infra.Logger.Error("startup failed, service stays unready", "error", err)
			return
		}
		s.infra.Logger.Info("screening service ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("shutting down")
	return s.infra.Lifecycle.Shutdown(timeout)
}
