package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// Server binds the hub's listening endpoint. A port already bound by another
// process is an expected condition under the host app's multi-process dev
// mode, not an error: the hub simply lives in that other process and
// IsRunning reports false here.
type Server struct {
	addr    string
	handler http.Handler

	mu        sync.Mutex
	srv       *http.Server
	running   bool
	attempted bool
}

func New(addr string, handler http.Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Start attempts to bind and serve. Bind conflicts are soft failures.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempted {
		return nil
	}
	s.attempted = true

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			l := log.L()
			l.Warn().Str("addr", s.addr).Msg("endpoint already bound, another process owns the hub")
			return nil
		}
		return err
	}

	s.srv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}
	s.running = true

	go func() {
		l := log.L()
		l.Info().Str("addr", s.addr).Msg("listening")
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.Error().Err(err).Msg("server error")
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return nil
}

// IsRunning reports whether this process owns the listening endpoint.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop shuts the server down and resets the start attempt so a future Start
// can retry the bind.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.running = false
	s.attempted = false
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
