// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package adminapi is the HTTP front-end over the Public Control Surface
// (C10): a small gorilla/mux REST API plus a gorilla/websocket endpoint
// streaming state_stream() to connected UIs. It never touches the
// orchestrator directly — every request goes through internal/control.
package adminapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"shieldcore.dev/fwcore/internal/control"
	"shieldcore.dev/fwcore/internal/logging"
)

// ServerConfig holds HTTP server hardening knobs, in the same spirit as
// the teacher's own ServerConfig: a control-plane admin API has the same
// slowloris/oversized-body exposure as any other HTTP listener.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig mirrors the teacher's defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

// Server is the admin HTTP API over a *control.Surface.
type Server struct {
	surface *control.Surface
	logger  *logging.Logger
	cfg     ServerConfig

	httpSrv *http.Server
	ln      net.Listener
}

// New builds a Server. logger may be nil, in which case logging.Default() is used.
func New(surface *control.Surface, logger *logging.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{surface: surface, logger: logger.WithComponent("adminapi"), cfg: cfg}
}

// Router builds the mux.Router this server serves, exported so callers
// (tests, or a front-end wanting to mount this under a larger router) can
// use it without going through ListenAndServe.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	v1.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/plan", s.handlePlan).Methods(http.MethodGet)
	v1.HandleFunc("/stream", s.handleStream)
	return router
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// canceled, at which point it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down admin API")
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
