package service

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/httputil"
	"github.com/edgecomet/pagerender/internal/common/requestid"
	"github.com/edgecomet/pagerender/internal/render/args"
	"github.com/edgecomet/pagerender/internal/render/chrome"
	"github.com/edgecomet/pagerender/internal/render/orchestrator"
)

const allowedMethods = "GET, HEAD"

// Route labels used for HTTP metrics
const (
	routeRoot     = "root"
	routeHealth   = "health"
	routeNotFound = "not_found"
)

// Metrics is what the HTTP layer records
type Metrics interface {
	orchestrator.Metrics
	RecordHTTPRequest(endpoint string, status int)
}

// PoolStatter reports Chrome pool occupancy for /health
type PoolStatter interface {
	Stats() chrome.PoolStats
}

// Deps wires the service to its collaborators. Stats, Metrics and Pool are optional.
type Deps struct {
	Engine    orchestrator.Engine
	Extractor *args.Extractor
	Scheduler *orchestrator.Scheduler
	Stats     orchestrator.StatsRecorder
	Metrics   Metrics
	Pool      PoolStatter
	Logger    *zap.Logger
}

// Server routes render, health and liveness requests
type Server struct {
	html      *orchestrator.Endpoint
	png       *orchestrator.Endpoint
	scheduler *orchestrator.Scheduler
	pool      PoolStatter
	metrics   Metrics
	logger    *zap.Logger
}

func New(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	endpointDeps := orchestrator.Deps{
		Scheduler: deps.Scheduler,
		Stats:     deps.Stats,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
	}

	return &Server{
		html:      orchestrator.NewHTMLEndpoint(deps.Engine, deps.Extractor.HTMLRequest, endpointDeps),
		png:       orchestrator.NewPNGEndpoint(deps.Engine, deps.Extractor.PNGRequest, endpointDeps),
		scheduler: deps.Scheduler,
		pool:      deps.Pool,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// Handler returns the fasthttp request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.handle
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	requestID := requestid.FromHeader(string(ctx.Request.Header.Peek(requestid.HeaderName)))
	ctx.Response.Header.Set(requestid.HeaderName, requestID)

	path := string(ctx.Path())
	route := routeNotFound

	switch path {
	case "/":
		route = routeRoot
		if s.allowMethod(ctx) {
			ctx.SetStatusCode(fasthttp.StatusOK)
		}
	case "/health":
		route = routeHealth
		if s.allowMethod(ctx) {
			s.handleHealth(ctx)
		}
	case "/render.html":
		route = s.html.Name()
		if s.allowMethod(ctx) {
			s.handleRender(ctx, s.html, requestID, path)
		}
	case "/render.png":
		route = s.png.Name()
		if s.allowMethod(ctx) {
			s.handleRender(ctx, s.png, requestID, path)
		}
	default:
		httputil.Text(ctx, fasthttp.StatusNotFound, "Not Found\n")
	}

	s.metrics.RecordHTTPRequest(route, ctx.Response.StatusCode())
}

func (s *Server) allowMethod(ctx *fasthttp.RequestCtx) bool {
	if ctx.IsGet() || ctx.IsHead() {
		return true
	}
	httputil.MethodNotAllowed(ctx, allowedMethods)
	return false
}

type noopMetrics struct{}

func (noopMetrics) RecordRender(string, string, time.Duration) {}
func (noopMetrics) RecordError(string)                         {}
func (noopMetrics) SetInflight(int)                            {}
func (noopMetrics) RecordHTTPRequest(string, int)              {}
