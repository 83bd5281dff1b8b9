package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/configtypes"
)

// MetricsHandler serves the Prometheus exposition
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Server exposes metrics on a port separate from the render endpoints
type Server struct {
	listen string
	path   string
	server *fasthttp.Server
	logger *zap.Logger
}

// New returns nil when metrics are disabled
func New(cfg configtypes.MetricsConfig, handler MetricsHandler, logger *zap.Logger) *Server {
	if !cfg.Enabled {
		logger.Info("Metrics collection disabled")
		return nil
	}

	return &Server{
		listen: cfg.Listen,
		path:   cfg.Path,
		logger: logger,
		server: &fasthttp.Server{
			Handler:            createMetricsHandler(cfg.Path, handler),
			Name:               "PageRender-Metrics",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxRequestBodySize: 1 * 1024,
			TCPKeepalive:       true,
			TCPKeepalivePeriod: 30 * time.Second,
			MaxConnsPerIP:      100,
			MaxRequestsPerConn: 1000,
			Concurrency:        100,
		},
	}
}

// Listen binds the configured address so bind failures surface before serving
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", s.listen, err)
	}
	return ln, nil
}

// Serve blocks until the listener is closed by Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Metrics server listening",
		zap.String("listen", ln.Addr().String()),
		zap.String("path", s.path))

	if err := s.server.Serve(ln); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for open ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

func createMetricsHandler(metricsPath string, metrics MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != metricsPath {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			return
		}
		metrics.ServeHTTP(ctx)
	}
}
