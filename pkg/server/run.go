package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/campus/pkg/version"
)

// Run starts every configured listener and blocks until ctx is cancelled
// or SIGINT/SIGTERM arrives, then shuts down: listeners first, then live
// connections, then the store.
func (s *Server) Run(ctx context.Context) error {
	if s.services.Accounts == nil {
		return fmt.Errorf("server: missing services dependency")
	}
	if s.store != nil {
		defer func() { _ = s.store.Close() }()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.ensureAdmin(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.Listen != "" {
		ln, err := s.listen()
		if err != nil {
			return err
		}
		g.Go(func() error { return s.Serve(gctx, ln) })
	}
	if s.cfg.WSListen != "" {
		ln, err := net.Listen("tcp", s.cfg.WSListen)
		if err != nil {
			return fmt.Errorf("server: listen websocket: %w", err)
		}
		srv := &http.Server{Handler: s.WebSocketHandler(gctx), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serveHTTP(gctx, "websocket", srv, ln) })
	}
	if s.cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", s.cfg.MetricsListen)
		if err != nil {
			return fmt.Errorf("server: listen metrics: %w", err)
		}
		srv := &http.Server{Handler: metricsHandler(s.promReg), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serveHTTP(gctx, "metrics", srv, ln) })
	}

	s.metrics.StartPeriodicLog(60*time.Second, gctx.Done())
	slog.Info("campus server running", "version", version.Get().Full(), "listen", s.cfg.Listen, "ws", s.cfg.WSListen)

	err := g.Wait()
	slog.Info("shutting down...")
	s.closeConns()
	return err
}

func (s *Server) listen() (net.Listener, error) {
	if !s.cfg.TLS {
		ln, err := net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("server: listen: %w", err)
		}
		return ln, nil
	}

	cert, err := loadOrGenerateTLS(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("server: tls: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	ln, err := tls.Listen("tcp", s.cfg.Listen, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("server: listen: %w", err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled, running one
// connection handler goroutine per connection. Closing the listener does
// not touch live connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slog.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.ServeConn(ctx, NewStreamTransport(conn))
	}
}

// WebSocketHandler upgrades requests on /ws and serves each as a connection.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.ServeConn(ctx, NewWebSocketTransport(ws))
	})
	return mux
}

// ensureAdmin creates the bootstrap administrator on first run.
func (s *Server) ensureAdmin(ctx context.Context) error {
	password, err := s.services.Accounts.EnsureAdmin(ctx)
	if err != nil {
		return fmt.Errorf("server: bootstrap admin: %w", err)
	}
	if password == "" {
		return nil
	}
	slog.Info("========================================")
	slog.Info("ADMIN ACCOUNT CREATED (save this!):", "login", "admin", "password", password)
	slog.Info("========================================")
	return nil
}
