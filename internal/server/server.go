package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows which paths it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router registers handlers and middleware.
type Router interface {
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// CallbackServer serves a [Router] on a local address until shut down.
type CallbackServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *log.Logger
	errc   chan error
}

// Listen binds addr and starts serving router in the background. Port 0 picks a free port.
func Listen(addr string, router http.Handler, logger *log.Logger) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &CallbackServer{
		srv:    &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		ln:     ln,
		logger: logger,
		errc:   make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errc <- err
	}()

	logger.Debug("callback server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address, e.g. 127.0.0.1:5173.
func (s *CallbackServer) Addr() string {
	return s.ln.Addr().String()
}

// Port returns the bound TCP port.
func (s *CallbackServer) Port() int {
	if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Shutdown stops the server and waits for the serve loop to exit.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.errc
}
