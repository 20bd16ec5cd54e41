package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/expectd/pkg/transport"
)

// Server serves the dispatch pipeline of an Engine over HTTP.
type Server struct {
	engine  *Engine
	handler *transport.Handler
	srv     *http.Server
	log     *slog.Logger

	mu      sync.Mutex
	running bool
}

type serverOptions struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxBodySize  int64
	tlsConfig    *tls.Config
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

func WithReadTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.readTimeout = d }
}

func WithWriteTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.writeTimeout = d }
}

// WithMaxRequestBody limits how many body bytes are read per request.
func WithMaxRequestBody(n int64) ServerOption {
	return func(o *serverOptions) { o.maxBodySize = n }
}

// WithTLSConfig serves HTTPS with cfg. Requests are then reported as secure.
func WithTLSConfig(cfg *tls.Config) ServerOption {
	return func(o *serverOptions) { o.tlsConfig = cfg }
}

// NewServer creates a Server listening on addr.
func NewServer(e *Engine, addr string, opts ...ServerOption) *Server {
	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}
	h := transport.NewHandler(e, o.maxBodySize)
	h.SetLogger(e.log)
	return &Server{
		engine:  e,
		handler: h,
		log:     e.log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			TLSConfig:         o.tlsConfig,
			ReadTimeout:       o.readTimeout,
			ReadHeaderTimeout: o.readTimeout,
			WriteTimeout:      o.writeTimeout,
		},
	}
}

// SetLogger sets the operational logger.
func (s *Server) SetLogger(log *slog.Logger) {
	if log == nil {
		return
	}
	s.log = log
	s.handler.SetLogger(log)
}

// Handler returns the http.Handler that dispatches to the engine.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// ListenAndServe listens on the configured address and serves until
// Shutdown. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.srv.TLSConfig != nil {
		l = tls.NewListener(l, s.srv.TLSConfig)
	}
	s.log.Info("starting expectation server", "addr", l.Addr().String(), "tls", s.srv.TLSConfig != nil)
	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done. A Serve that starts afterwards returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	s.log.Info("expectation server stopped")
	return nil
}
