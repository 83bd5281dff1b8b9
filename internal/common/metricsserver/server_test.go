package metricsserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/pagerender/internal/common/configtypes"
)

type mockMetricsHandler struct {
	called bool
}

func (m *mockMetricsHandler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.called = true
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("# TYPE test_metric counter\ntest_metric 42\n")
}

func TestNew_Disabled(t *testing.T) {
	srv := New(configtypes.MetricsConfig{Enabled: false}, &mockMetricsHandler{}, zap.NewNop())
	assert.Nil(t, srv)
}

func TestMetricsHandler_Paths(t *testing.T) {
	testCases := []struct {
		name       string
		configured string
		requested  string
		wantStatus int
	}{
		{"default path", "/metrics", "/metrics", fasthttp.StatusOK},
		{"custom path", "/internal/metrics", "/internal/metrics", fasthttp.StatusOK},
		{"root", "/metrics", "/", fasthttp.StatusNotFound},
		{"render route", "/metrics", "/render.html", fasthttp.StatusNotFound},
		{"nested", "/metrics", "/metrics/extra", fasthttp.StatusNotFound},
		{"default on custom", "/internal/metrics", "/metrics", fasthttp.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockMetricsHandler{}
			handler := createMetricsHandler(tc.configured, mock)

			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI(tc.requested)
			handler(ctx)

			assert.Equal(t, tc.wantStatus, ctx.Response.StatusCode())
			assert.Equal(t, tc.wantStatus == fasthttp.StatusOK, mock.called)
		})
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	mock := &mockMetricsHandler{}
	cfg := configtypes.MetricsConfig{Enabled: true, Listen: ":0", Path: "/metrics"}
	srv := New(cfg, mock, zaptest.NewLogger(t))
	require.NotNil(t, srv)

	ln := fasthttputil.NewInmemoryListener()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://metrics/metrics")
	req.Header.SetConnectionClose()
	require.NoError(t, client.Do(req, resp))
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "test_metric 42")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestServer_ListenBindError(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := configtypes.MetricsConfig{Enabled: true, Listen: occupied.Addr().String(), Path: "/metrics"}
	srv := New(cfg, &mockMetricsHandler{}, zap.NewNop())

	_, err = srv.Listen()
	assert.ErrorContains(t, err, "metrics listen")
}
