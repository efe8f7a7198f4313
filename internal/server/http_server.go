package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/presence-relay/internal/relay"
)

// Server bundles the relay hub with its HTTP front end.
type Server struct {
	cfg        Config
	log        *slog.Logger
	hub        *relay.Hub
	origins    *originPolicy
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer builds a server from cfg. Nothing listens until Start.
func NewServer(cfg Config, log *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		hub:     relay.NewHub(cfg.RelayOptions(), log),
		origins: newOriginPolicy(cfg.Origins(), log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.httpServer = CreateServer(cfg.Addr(), s.routes())
	return s
}

// CreateServer creates an HTTP server for addr with production timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the routed HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Hub returns the relay hub behind this server.
func (s *Server) Hub() *relay.Hub { return s.hub }

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("Server listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every relay session. HTTP
// shutdown does not wait for hijacked WebSocket connections, so the hub is
// drained separately within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.log.Info("Server shutdown completed")
	return nil
}
