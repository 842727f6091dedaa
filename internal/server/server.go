// Package server is the connection supervisor: it accepts chat clients over
// TCP and WebSocket, runs the login handshake, feeds decoded frames to the
// dispatch engine, answers presence queries over UDP and serves the admin
// HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-chat-broker/internal/chat"
	"go-chat-broker/internal/config"
	"go-chat-broker/internal/store"
	"go-chat-broker/internal/user"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg    *config.Config
	engine *chat.Engine
	users  *user.Service
	store  store.Store
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func New(cfg *config.Config, engine *chat.Engine, users *user.Service, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		users:  users,
		store:  st,
		logger: logger,
		conns:  make(map[Conn]struct{}),
	}
}

// Run binds every configured listener and serves until ctx is cancelled or
// one of them fails. Live connections are closed before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
	}
	pc, err := net.ListenPacket("udp", s.cfg.UDPAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("listen udp %s: %w", s.cfg.UDPAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ServeTCP(ctx, ln) })
	g.Go(func() error { return s.ServeUDP(ctx, pc) })

	if s.cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              s.cfg.HTTPAddr,
			Handler:           s.Router(ctx),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("http listener started", "addr", s.cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	s.closeConns()
	s.wg.Wait()
	return err
}
