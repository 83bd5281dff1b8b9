package chrome

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/pkg/types"
)

// Engine renders pages on pooled Chrome instances
type Engine struct {
	pool   *ChromePool
	logger *zap.Logger
}

func NewEngine(pool *ChromePool, logger *zap.Logger) *Engine {
	return &Engine{pool: pool, logger: logger}
}

// RenderHTML renders req.URL and returns the serialized document
func (e *Engine) RenderHTML(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	return e.render(ctx, req, (*ChromeInstance).RenderHTML)
}

// RenderPNG renders req.URL and returns a PNG screenshot
func (e *Engine) RenderPNG(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	return e.render(ctx, req, (*ChromeInstance).RenderPNG)
}

// Stats exposes pool occupancy for health reporting and registry heartbeats
func (e *Engine) Stats() PoolStats {
	return e.pool.Stats()
}

type renderFunc func(*ChromeInstance, context.Context, *types.RenderRequest) ([]byte, error)

// render holds an instance for the duration of fn. The instance goes back to the pool
// only once fn returns, even if ctx was cancelled earlier.
func (e *Engine) render(ctx context.Context, req *types.RenderRequest, fn renderFunc) ([]byte, error) {
	instance, err := e.pool.Acquire(ctx, req.RequestID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("acquire chrome instance: %w", err)
	}
	defer e.pool.Release(instance)

	e.logger.Debug("Rendering page",
		zap.String("request_id", req.RequestID),
		zap.String("output", req.Output.String()),
		zap.String("url", req.URL),
		zap.Int("instance_id", instance.ID))

	return fn(instance, ctx, req)
}
