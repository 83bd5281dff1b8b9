package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/render/args"
	"github.com/edgecomet/pagerender/internal/render/chrome"
	"github.com/edgecomet/pagerender/internal/render/orchestrator"
	"github.com/edgecomet/pagerender/internal/render/stats"
	"github.com/edgecomet/pagerender/pkg/types"
)

type renderBehavior func(ctx context.Context, req *types.RenderRequest) ([]byte, error)

func respondWith(body []byte) renderBehavior {
	return func(context.Context, *types.RenderRequest) ([]byte, error) {
		return body, nil
	}
}

func failWith(err error) renderBehavior {
	return func(context.Context, *types.RenderRequest) ([]byte, error) {
		return nil, err
	}
}

// slowRender returns body after delay unless cancelled first
func slowRender(delay time.Duration, body []byte) renderBehavior {
	return func(ctx context.Context, _ *types.RenderRequest) ([]byte, error) {
		select {
		case <-time.After(delay):
			return body, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type fakeEngine struct {
	mu        sync.Mutex
	behavior  renderBehavior
	requests  []*types.RenderRequest
	cancelled int
	started   chan struct{}
}

func newFakeEngine(behavior renderBehavior) *fakeEngine {
	return &fakeEngine{behavior: behavior, started: make(chan struct{}, 16)}
}

func (f *fakeEngine) RenderHTML(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	return f.render(ctx, req)
}

func (f *fakeEngine) RenderPNG(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	return f.render(ctx, req)
}

func (f *fakeEngine) render(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	behavior := f.behavior
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	out, err := behavior(ctx, req)
	if ctx.Err() != nil {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}
	return out, err
}

func (f *fakeEngine) calls() []*types.RenderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.RenderRequest(nil), f.requests...)
}

func (f *fakeEngine) cancellations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type memorySink struct {
	mu      sync.Mutex
	records []stats.Record
}

func (s *memorySink) Emit(rec stats.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) all() []stats.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stats.Record(nil), s.records...)
}

type fakeMetrics struct {
	mu       sync.Mutex
	http     map[string]int
	outcomes map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{http: map[string]int{}, outcomes: map[string]int{}}
}

func (m *fakeMetrics) RecordRender(endpoint, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[endpoint+"/"+outcome]++
}

func (m *fakeMetrics) RecordError(string) {}
func (m *fakeMetrics) SetInflight(int)    {}

func (m *fakeMetrics) RecordHTTPRequest(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.http[fmt.Sprintf("%s %d", endpoint, status)]++
}

func (m *fakeMetrics) httpCount(endpoint string, status int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.http[fmt.Sprintf("%s %d", endpoint, status)]
}

type fakePool struct {
	stats chrome.PoolStats
}

func (p fakePool) Stats() chrome.PoolStats { return p.stats }

// testServer runs the service on an in-memory listener
type testServer struct {
	engine    *fakeEngine
	sink      *memorySink
	metrics   *fakeMetrics
	scheduler *orchestrator.Scheduler
	server    *fasthttp.Server
	client    *fasthttp.Client
	served    chan error
}

type response struct {
	status      int
	contentType string
	body        []byte
	requestID   string
	allow       string
}

func newTestServer(engine *fakeEngine, logger *zap.Logger) (*testServer, error) {
	scheduler := orchestrator.NewScheduler(logger)
	if err := scheduler.Start(); err != nil {
		return nil, err
	}

	ts := &testServer{
		engine:    engine,
		sink:      &memorySink{},
		metrics:   newFakeMetrics(),
		scheduler: scheduler,
		served:    make(chan error, 1),
	}

	srv := New(Deps{
		Engine:    engine,
		Extractor: args.NewExtractor(args.Limits{MaxTimeout: 90 * time.Second, MaxViewport: 4096}),
		Scheduler: scheduler,
		Stats:     stats.NewRecorder(ts.sink, nil, nil, logger),
		Metrics:   ts.metrics,
		Pool: fakePool{stats: chrome.PoolStats{
			TotalInstances:     4,
			AvailableInstances: 3,
			ActiveInstances:    1,
		}},
		Logger: logger,
	})

	ln := fasthttputil.NewInmemoryListener()
	ts.server = &fasthttp.Server{Handler: srv.Handler(), Logger: zap.NewStdLog(logger)}
	ts.client = &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	go func() { ts.served <- ts.server.Serve(ln) }()

	return ts, nil
}

func (ts *testServer) close() error {
	shutdownErr := ts.server.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(shutdownErr, ts.scheduler.Stop(ctx))
}

func (ts *testServer) get(uri string) (response, error) {
	return ts.do(fasthttp.MethodGet, uri, nil)
}

func (ts *testServer) do(method, uri string, headers map[string]string) (response, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://render.test" + uri)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if err := ts.client.DoTimeout(req, resp, 10*time.Second); err != nil {
		return response{}, err
	}

	return response{
		status:      resp.StatusCode(),
		contentType: string(resp.Header.ContentType()),
		body:        append([]byte(nil), resp.Body()...),
		requestID:   string(resp.Header.Peek("X-Request-ID")),
		allow:       string(resp.Header.Peek(fasthttp.HeaderAllow)),
	}, nil
}
