package httpapi

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxRequestBodySize int
	Name               string
}

// Server wraps a fasthttp.Server.
type Server struct {
	srv    *fasthttp.Server
	addr   string
	logger *zap.Logger
}

// NewServer creates a server for handler.
func NewServer(cfg ServerConfig, handler fasthttp.RequestHandler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		srv: &fasthttp.Server{
			Handler:            handler,
			Name:               cfg.Name,
			ReadTimeout:        cfg.ReadTimeout,
			WriteTimeout:       cfg.WriteTimeout,
			IdleTimeout:        cfg.IdleTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
			CloseOnShutdown:    true,
		},
		addr:   cfg.Addr,
		logger: logger,
	}
}

// ListenAndServe blocks serving on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve blocks serving ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.ShutdownWithContext(ctx)
}
