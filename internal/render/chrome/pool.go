package chrome

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PoolObserver is notified whenever pool occupancy changes
type PoolObserver interface {
	UpdateChromePool(size, available int)
}

// ChromePool manages a fixed set of Chrome instances handed out through a FIFO queue
type ChromePool struct {
	config        *Config
	logger        *zap.Logger
	instances     []*ChromeInstance
	queue         chan int // IDs of idle instances
	mu            sync.RWMutex
	active        atomic.Int32
	totalRenders  atomic.Int64
	totalRestarts atomic.Int64
	createdAt     time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	observer      PoolObserver
	shutdownOnce  sync.Once

	// Overridable for tests that run without a browser
	isAlive func(*ChromeInstance) bool
	restart func(*ChromeInstance) error
}

// NewChromePool launches every instance up front. observer may be nil.
func NewChromePool(config *Config, observer PoolObserver, logger *zap.Logger) (*ChromePool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolSize := config.CalculatePoolSize()
	logger.Info("Initializing Chrome pool", zap.Int("pool_size", poolSize))

	pool := newPool(config, poolSize, observer, logger)
	for i := 0; i < poolSize; i++ {
		instance, err := NewChromeInstance(i, config, logger)
		if err != nil {
			pool.Shutdown()
			return nil, err
		}
		pool.add(instance)
	}

	logger.Info("Chrome pool initialized successfully", zap.Int("instances", poolSize))
	pool.notify()

	return pool, nil
}

func newPool(config *Config, size int, observer PoolObserver, logger *zap.Logger) *ChromePool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &ChromePool{
		config:    config,
		logger:    logger,
		instances: make([]*ChromeInstance, 0, size),
		queue:     make(chan int, size),
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		observer:  observer,
	}
	p.isAlive = (*ChromeInstance).IsAlive
	p.restart = func(ci *ChromeInstance) error { return ci.Restart(p.config) }
	return p
}

func (p *ChromePool) add(instance *ChromeInstance) {
	p.mu.Lock()
	p.instances = append(p.instances, instance)
	p.mu.Unlock()
	p.queue <- instance.ID
}

// Acquire blocks until an instance is idle, ctx is done or the pool shuts down.
// Dead instances are restarted and instances past their restart policy are recycled first.
func (p *ChromePool) Acquire(ctx context.Context, requestID string) (*ChromeInstance, error) {
	var instanceID int
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolShutdown
	case instanceID = <-p.queue:
	}

	if p.ctx.Err() != nil {
		p.requeue(instanceID)
		return nil, ErrPoolShutdown
	}

	p.active.Add(1)

	p.mu.RLock()
	instance := p.instances[instanceID]
	p.mu.RUnlock()

	if !p.isAlive(instance) {
		p.logger.Warn("Chrome instance is dead, restarting",
			zap.String("request_id", requestID),
			zap.Int("instance_id", instanceID),
			zap.Int32("requests_done", instance.GetRequestsDone()))

		if err := p.restart(instance); err != nil {
			p.logger.Error("Failed to restart dead instance",
				zap.String("request_id", requestID),
				zap.Int("instance_id", instanceID),
				zap.Error(err))
			p.active.Add(-1)
			p.requeue(instanceID)
			return nil, fmt.Errorf("%w: instance %d", ErrInstanceDead, instanceID)
		}
		p.totalRestarts.Add(1)
	} else if instance.ShouldRestart(p.config) {
		p.logger.Info("Chrome instance needs restart based on policy",
			zap.String("request_id", requestID),
			zap.Int("instance_id", instanceID),
			zap.Int32("requests_done", instance.GetRequestsDone()),
			zap.Duration("age", instance.Age()))

		if err := p.restart(instance); err != nil {
			p.logger.Error("Failed to restart instance",
				zap.String("request_id", requestID),
				zap.Int("instance_id", instanceID),
				zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}

	instance.SetStatus(ChromeStatusRendering)
	instance.currentRequestID = requestID

	p.logger.Debug("Chrome instance acquired",
		zap.String("request_id", requestID),
		zap.Int("instance_id", instanceID),
		zap.Int32("active", p.active.Load()))

	p.notify()
	return instance, nil
}

// Release returns an instance to the pool
func (p *ChromePool) Release(instance *ChromeInstance) {
	requestID := instance.currentRequestID
	instance.currentRequestID = ""
	instance.SetStatus(ChromeStatusIdle)
	instance.IncrementRequests()
	p.totalRenders.Add(1)
	p.active.Add(-1)

	p.requeue(instance.ID)

	p.logger.Debug("Chrome instance released",
		zap.String("request_id", requestID),
		zap.Int("instance_id", instance.ID),
		zap.Int32("requests_done", instance.GetRequestsDone()),
		zap.Int32("active", p.active.Load()))

	p.notify()
}

func (p *ChromePool) requeue(instanceID int) {
	select {
	case p.queue <- instanceID:
	default:
		p.logger.Error("Queue full when returning instance - possible leak",
			zap.Int("instance_id", instanceID),
			zap.Int("queue_len", len(p.queue)))
	}
}

func (p *ChromePool) notify() {
	if p.observer == nil {
		return
	}
	stats := p.Stats()
	p.observer.UpdateChromePool(stats.TotalInstances, stats.AvailableInstances)
}

// Stats returns current pool statistics
func (p *ChromePool) Stats() PoolStats {
	p.mu.RLock()
	total := len(p.instances)
	p.mu.RUnlock()

	return PoolStats{
		TotalInstances:     total,
		AvailableInstances: len(p.queue),
		ActiveInstances:    int(p.active.Load()),
		TotalRenders:       p.totalRenders.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

// Shutdown drains active renders for up to the configured shutdown timeout, then
// terminates every instance. Safe to call more than once.
func (p *ChromePool) Shutdown() {
	p.ShutdownWithTimeout(p.config.ShutdownTimeout)
}

// ShutdownWithTimeout is Shutdown with an explicit drain timeout
func (p *ChromePool) ShutdownWithTimeout(timeout time.Duration) {
	p.shutdownOnce.Do(func() {
		p.logger.Info("Initiating Chrome pool shutdown",
			zap.Duration("timeout", timeout),
			zap.Int32("active_renders", p.active.Load()))

		p.cancel()

		if p.waitForActiveRenders(timeout) {
			p.logger.Info("All active renders completed gracefully")
		} else {
			p.logger.Warn("Shutdown timeout exceeded, forcing termination",
				zap.Int32("stuck_renders", p.active.Load()))
		}

		p.mu.Lock()
		for _, instance := range p.instances {
			instance.Terminate()
		}
		p.mu.Unlock()

		stats := p.Stats()
		p.logger.Info("Chrome pool shut down",
			zap.Int64("total_renders", stats.TotalRenders),
			zap.Int64("total_restarts", stats.TotalRestarts),
			zap.Duration("uptime", stats.Uptime))
	})
}

// waitForActiveRenders reports whether all renders finished before the timeout
func (p *ChromePool) waitForActiveRenders(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for p.active.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
	return true
}

// PoolSize returns the total number of Chrome instances in the pool
func (p *ChromePool) PoolSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

// AvailableInstances returns the number of idle Chrome instances
func (p *ChromePool) AvailableInstances() int {
	return len(p.queue)
}
