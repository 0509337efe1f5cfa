// Package health exposes the liveness HTTP endpoint hosting platforms probe.
package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"gmwatch/internal/config"
	logx "gmwatch/pkg/logx"
)

// Server manages lifecycle for the liveness HTTP listener.
// Apply is hot-reload safe: it starts, stops, or rebinds the listener to
// follow the config.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewServer(log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log.With(logx.String("comp", "health"))}
}

// Apply starts/stops the server according to cfg.
func (s *Server) Apply(ctx context.Context, cfg config.HealthConfig) {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == addr {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(addr)
}

// Addr returns the bound listen address ("" when stopped).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) startLocked(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Chess watch bot is alive!"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("health listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("health server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("health endpoint enabled", logx.String("addr", s.addr))
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv := s.srv
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("health endpoint stopped", logx.String("addr", addr))
}
