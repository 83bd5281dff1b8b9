package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/pagerender/internal/render/chrome"
	"github.com/edgecomet/pagerender/pkg/types"
)

func startServer(t *testing.T, engine *fakeEngine) *testServer {
	t.Helper()
	ts, err := newTestServer(engine, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, ts.close()) })
	return ts
}

func TestRoot(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith(nil)))

	resp, err := ts.get("/")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.status)
	assert.Empty(t, resp.body)
	assert.Empty(t, ts.engine.calls())
	assert.Equal(t, 1, ts.metrics.httpCount(routeRoot, 200))
}

func TestNotFound(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith(nil)))

	for _, path := range []string{"/render", "/render.jpg", "/render.html/extra", "/favicon.ico"} {
		resp, err := ts.get(path)
		require.NoError(t, err)
		assert.Equal(t, fasthttp.StatusNotFound, resp.status, path)
	}
	assert.Equal(t, 4, ts.metrics.httpCount(routeNotFound, 404))
	assert.Empty(t, ts.engine.calls())
}

func TestMethodNotAllowed(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith([]byte("<html></html>"))))

	resp, err := ts.do(fasthttp.MethodPost, "/render.html?url=http://example.test", nil)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, resp.status)
	assert.Equal(t, "GET, HEAD", resp.allow)
	assert.Empty(t, ts.engine.calls())
}

func TestHead(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith([]byte("<html></html>"))))

	resp, err := ts.do(fasthttp.MethodHead, "/render.html?url=http://example.test", nil)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.status)
	assert.Equal(t, types.ContentTypeHTML, resp.contentType)
	assert.Empty(t, resp.body)
}

func TestHealth(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith(nil)))

	resp, err := ts.get("/health")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.status)
	assert.Equal(t, "application/json", resp.contentType)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.body, &health))
	assert.Equal(t, HealthResponse{
		Status:             "ok",
		PoolSize:           4,
		AvailableInstances: 3,
		ActiveInstances:    1,
		Inflight:           0,
	}, health)
}

func TestRequestID(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith([]byte("ok"))))

	resp, err := ts.get("/render.html?url=http://example.test")
	require.NoError(t, err)
	assert.Len(t, resp.requestID, 36, "generated UUID")

	resp, err = ts.do(fasthttp.MethodGet, "/render.html?url=http://example.test", map[string]string{
		"X-Request-ID": "crawler-42",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{5}-crawler-42$`, resp.requestID)

	calls := ts.engine.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, resp.requestID, calls[1].RequestID, "engine sees the same request ID")
}

func TestRenderHTML_PassesArguments(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith([]byte("<html></html>"))))

	resp, err := ts.get("/render.html?url=http://example.test/page&baseurl=http://cdn.example.test/&timeout=2.5")
	require.NoError(t, err)
	require.Equal(t, fasthttp.StatusOK, resp.status)

	calls := ts.engine.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "http://example.test/page", calls[0].URL)
	assert.Equal(t, "http://cdn.example.test/", calls[0].BaseURL)
	assert.Equal(t, 2500*time.Millisecond, calls[0].Timeout)
	assert.Equal(t, types.OutputHTML, calls[0].Output)
}

func TestRenderHTML_StatsRecord(t *testing.T) {
	ts := startServer(t, newFakeEngine(respondWith([]byte("<html></html>"))))

	_, err := ts.get("/render.html?url=http://example.test&timeout=5")
	require.NoError(t, err)

	records := ts.sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, "/render.html", records[0].Path)
	assert.Equal(t, url.Values{"url": {"http://example.test"}, "timeout": {"5"}}, records[0].Args)
	assert.GreaterOrEqual(t, records[0].RenderTime, 0.0)
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name     string
		behavior renderBehavior
		uri      string
		status   int
		body     string
	}{
		{
			name:     "invalid timeout",
			behavior: respondWith(nil),
			uri:      "/render.html?url=http://example.test&timeout=soon",
			status:   fasthttp.StatusBadRequest,
			body:     "Invalid argument: timeout\n",
		},
		{
			name:     "invalid width",
			behavior: respondWith(nil),
			uri:      "/render.png?url=http://example.test&width=wide",
			status:   fasthttp.StatusBadRequest,
			body:     "Invalid argument: width\n",
		},
		{
			name:     "render error",
			behavior: failWith(fmt.Errorf("%w: net::ERR_NAME_NOT_RESOLVED", types.ErrRender)),
			uri:      "/render.html?url=http://example.test",
			status:   fasthttp.StatusBadGateway,
			body:     "Error rendering page\n",
		},
		{
			name:     "pool failure is internal",
			behavior: failWith(fmt.Errorf("acquire chrome instance: %w", chrome.ErrPoolShutdown)),
			uri:      "/render.png?url=http://example.test",
			status:   fasthttp.StatusInternalServerError,
			body:     "acquire chrome instance: pool is shutting down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t, newFakeEngine(tt.behavior))

			resp, err := ts.get(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.status)
			assert.Equal(t, "text/plain; charset=utf-8", resp.contentType)
			assert.Equal(t, tt.body, string(resp.body))
			assert.Empty(t, ts.sink.all(), "no stats on failure")
		})
	}
}

func TestConcurrentRenders(t *testing.T) {
	engine := newFakeEngine(func(_ context.Context, req *types.RenderRequest) ([]byte, error) {
		time.Sleep(10 * time.Millisecond)
		return []byte(req.URL), nil
	})
	ts := startServer(t, engine)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := fmt.Sprintf("http://example.test/%d", i)
			resp, err := ts.get("/render.html?url=" + url.QueryEscape(target))
			if err != nil {
				errs <- err
				return
			}
			if resp.status != fasthttp.StatusOK || string(resp.body) != target {
				errs <- fmt.Errorf("request %d: status %d body %q", i, resp.status, resp.body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, ts.sink.all(), 20)
}

func TestShutdownCancelsInflightRender(t *testing.T) {
	engine := newFakeEngine(slowRender(5*time.Second, []byte("late")))
	ts, err := newTestServer(engine, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan response, 1)
	go func() {
		resp, err := ts.get("/render.html?url=http://example.test")
		if err != nil {
			resp.status = -1
		}
		done <- resp
	}()

	select {
	case <-engine.started:
	case <-time.After(2 * time.Second):
		t.Fatal("render never started")
	}

	closed := make(chan error, 1)
	go func() { closed <- ts.close() }()

	select {
	case resp := <-done:
		assert.Equal(t, fasthttp.StatusGatewayTimeout, resp.status)
		assert.Equal(t, "Timeout exceeded rendering page\n", string(resp.body))
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight render was not cancelled by shutdown")
	}

	assert.NoError(t, <-closed)
	assert.Equal(t, 1, engine.cancellations())
}

func TestResponseChannel_WritesIntoRequestCtx(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ch := &responseChannel{ctx: &ctx}

	assert.False(t, ch.Disconnected())
	ch.WriteResponse(fasthttp.StatusBadGateway, "text/plain; charset=utf-8", []byte("Error rendering page\n"))
	ch.Finish()

	assert.Equal(t, fasthttp.StatusBadGateway, ctx.Response.StatusCode())
	assert.Equal(t, "text/plain; charset=utf-8", string(ctx.Response.Header.ContentType()))
	assert.Equal(t, "Error rendering page\n", string(ctx.Response.Body()))
}
