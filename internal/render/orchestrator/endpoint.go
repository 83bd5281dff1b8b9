package orchestrator

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/pkg/types"
)

const contentTypePlain = "text/plain; charset=utf-8"

// Engine renders pages. Errors wrapping types.ErrRender are render errors;
// any other error is an internal failure.
type Engine interface {
	RenderHTML(ctx context.Context, req *types.RenderRequest) ([]byte, error)
	RenderPNG(ctx context.Context, req *types.RenderRequest) ([]byte, error)
}

// ParamExtractor builds a request from query arguments. Any error rejects the request with 400.
type ParamExtractor func(query url.Values) (*types.RenderRequest, error)

// JobConstructor binds a validated request to the render it needs
type JobConstructor func(req *types.RenderRequest) RenderFunc

// Metrics is the subset of the metrics collector used by endpoints
type Metrics interface {
	RecordRender(endpoint, outcome string, elapsed time.Duration)
	RecordError(errorType string)
	SetInflight(n int)
}

// StatsRecorder receives one record per successful render
type StatsRecorder interface {
	Record(path string, args url.Values, renderTime time.Duration)
}

// EndpointConfig is what distinguishes one render endpoint from another
type EndpointConfig struct {
	Name        string
	ContentType string
	Extract     ParamExtractor
	NewJob      JobConstructor
}

// Deps are the collaborators shared by all endpoints
type Deps struct {
	Scheduler *Scheduler
	Stats     StatsRecorder
	Metrics   Metrics
	Logger    *zap.Logger

	// OnStateChange, when set, observes every lifecycle transition
	OnStateChange func(requestID string, from, to State)
}

// Endpoint drives one request from argument extraction to a finalized response
type Endpoint struct {
	cfg  EndpointConfig
	deps Deps
}

func NewEndpoint(cfg EndpointConfig, deps Deps) *Endpoint {
	if deps.Stats == nil {
		deps.Stats = noopStats{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Endpoint{cfg: cfg, deps: deps}
}

// NewHTMLEndpoint serves rendered HTML
func NewHTMLEndpoint(engine Engine, extract ParamExtractor, deps Deps) *Endpoint {
	return NewEndpoint(EndpointConfig{
		Name:        "render.html",
		ContentType: types.ContentTypeHTML,
		Extract:     extract,
		NewJob: func(req *types.RenderRequest) RenderFunc {
			return func(ctx context.Context) ([]byte, error) {
				return engine.RenderHTML(ctx, req)
			}
		},
	}, deps)
}

// NewPNGEndpoint serves screenshots
func NewPNGEndpoint(engine Engine, extract ParamExtractor, deps Deps) *Endpoint {
	return NewEndpoint(EndpointConfig{
		Name:        "render.png",
		ContentType: types.ContentTypePNG,
		Extract:     extract,
		NewJob: func(req *types.RenderRequest) RenderFunc {
			return func(ctx context.Context) ([]byte, error) {
				return engine.RenderPNG(ctx, req)
			}
		},
	}, deps)
}

func (e *Endpoint) Name() string {
	return e.cfg.Name
}

// Handle serves one request and returns the status it answered with. It
// returns after the response was finalized. When ctx ends first (the peer
// went away or the server is shutting down) the render is cancelled.
func (e *Endpoint) Handle(ctx context.Context, requestID, path string, query url.Values, ch ResponseChannel) int {
	logger := e.deps.Logger.With(
		zap.String("request_id", requestID),
		zap.String("endpoint", e.cfg.Name))
	lc := newLifecycle(requestID, e.deps.OnStateChange, logger)
	resp := &responder{ch: ch}

	req, err := e.cfg.Extract(query)
	if err != nil {
		lc.advance(StateRejected)
		logger.Debug("Rejected render request", zap.Error(err))
		e.deps.Metrics.RecordError("validation")
		resp.write(http.StatusBadRequest, contentTypePlain, []byte(err.Error()+"\n"))
		resp.finish()
		return http.StatusBadRequest
	}
	req.RequestID = requestID
	lc.advance(StateValidated)

	start := time.Now()
	job := e.deps.Scheduler.Dispatch(e.cfg.NewJob(req))
	lc.advance(StateDispatched)
	guard := e.deps.Scheduler.Arm(req.Timeout, job.Cancel)
	job.onResolve(func() { guard.Disarm() })
	e.deps.Metrics.SetInflight(e.deps.Scheduler.Inflight())
	lc.advance(StateRendering)

	select {
	case <-job.Done():
	case <-ctx.Done():
		logger.Debug("Request context ended before render resolved", zap.Error(ctx.Err()))
		job.Cancel()
	}
	result := job.Result()
	elapsed := time.Since(start)

	class := Classify(result)
	lc.advance(class.state())
	e.deps.Metrics.RecordRender(e.cfg.Name, class.String(), elapsed)
	e.deps.Metrics.SetInflight(e.deps.Scheduler.Inflight())

	switch class {
	case ClassCompleted:
		e.deps.Stats.Record(path, query, elapsed)
		resp.write(http.StatusOK, e.cfg.ContentType, result.Output)
		logger.Info("Render completed",
			zap.String("url", req.URL),
			zap.Duration("duration", elapsed),
			zap.Int("bytes", len(result.Output)))

	case ClassTimedOut:
		e.deps.Metrics.RecordError("timeout")
		resp.write(class.StatusCode(), contentTypePlain, []byte(TimeoutBody))
		logger.Debug("Render cancelled",
			zap.String("url", req.URL),
			zap.Duration("timeout", req.Timeout),
			zap.Bool("timer_fired", guard.Fired()))

	case ClassRenderFailed:
		e.deps.Metrics.RecordError("render")
		resp.write(class.StatusCode(), contentTypePlain, []byte(RenderErrorBody))
		logger.Warn("Render failed", zap.String("url", req.URL), zap.String("error", result.Err.Error()))

	default:
		e.deps.Metrics.RecordError("internal")
		resp.write(class.StatusCode(), contentTypePlain, []byte(errorBody(class, result.Err)))
		logger.Error("Render internal failure", zap.String("url", req.URL), zap.Error(result.Err))
	}

	lc.advance(StateFinalized)
	resp.finish()
	return class.StatusCode()
}

type noopStats struct{}

func (noopStats) Record(string, url.Values, time.Duration) {}

type noopMetrics struct{}

func (noopMetrics) RecordRender(string, string, time.Duration) {}
func (noopMetrics) RecordError(string)                         {}
func (noopMetrics) SetInflight(int)                            {}
