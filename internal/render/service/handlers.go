package service

import (
	"net/url"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/httputil"
	"github.com/edgecomet/pagerender/internal/render/orchestrator"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status"`
	PoolSize           int    `json:"pool_size"`
	AvailableInstances int    `json:"available_instances"`
	ActiveInstances    int    `json:"active_instances"`
	Inflight           int    `json:"inflight"`
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	resp := HealthResponse{
		Status:   "ok",
		Inflight: s.scheduler.Inflight(),
	}
	if s.pool != nil {
		stats := s.pool.Stats()
		resp.PoolSize = stats.TotalInstances
		resp.AvailableInstances = stats.AvailableInstances
		resp.ActiveInstances = stats.ActiveInstances
	}

	httputil.JSON(ctx, fasthttp.StatusOK, resp)
}

// handleRender blocks the fasthttp worker until the endpoint finalized the response.
// The RequestCtx is the request context: server shutdown cancels the render.
func (s *Server) handleRender(ctx *fasthttp.RequestCtx, endpoint *orchestrator.Endpoint, requestID, path string) {
	status := endpoint.Handle(ctx, requestID, path, queryValues(ctx.QueryArgs()), &responseChannel{ctx: ctx})

	s.logger.Debug("Render request served",
		zap.String("request_id", requestID),
		zap.String("endpoint", endpoint.Name()),
		zap.String("remote_addr", ctx.RemoteAddr().String()),
		zap.Int("status", status))
}

// queryValues copies fasthttp query arguments, keeping repeated keys in order
func queryValues(query *fasthttp.Args) url.Values {
	values := make(url.Values, query.Len())
	query.VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}

// responseChannel writes a render outcome into the fasthttp response.
// fasthttp serializes the response onto the connection only after the handler
// returns, so WriteResponse and Finish never touch the socket. If the peer has
// gone by then, fasthttp's write fails and it closes the connection, so nothing
// reaches a disconnected peer and Disconnected can always report false.
type responseChannel struct {
	ctx *fasthttp.RequestCtx
}

func (c *responseChannel) Disconnected() bool {
	return false
}

func (c *responseChannel) WriteResponse(status int, contentType string, body []byte) {
	c.ctx.SetStatusCode(status)
	c.ctx.SetContentType(contentType)
	c.ctx.SetBody(body)
}

// Finish is a no-op: fasthttp finalizes the response when the handler returns
func (c *responseChannel) Finish() {}
