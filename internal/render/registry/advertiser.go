package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Load is the capacity snapshot published with each heartbeat
type Load struct {
	Capacity  int
	Available int
	Inflight  int
}

// LoadFunc reports the current load of this service
type LoadFunc func() Load

// Advertiser keeps this service registered while Run is active
type Advertiser struct {
	registry *ServiceRegistry
	info     ServiceInfo
	hostname string
	interval time.Duration
	load     LoadFunc
	logger   *zap.Logger
}

// NewAdvertiser publishes info every interval (HeartbeatInterval when zero)
func NewAdvertiser(registry *ServiceRegistry, info ServiceInfo, hostname string, interval time.Duration,
	load LoadFunc, logger *zap.Logger,
) *Advertiser {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &Advertiser{
		registry: registry,
		info:     info,
		hostname: hostname,
		interval: interval,
		load:     load,
		logger:   logger,
	}
}

// Run sends a heartbeat immediately and then on every tick until ctx is done,
// then removes the advertisement. Heartbeat failures are logged and retried on the next tick.
func (a *Advertiser) Run(ctx context.Context) error {
	a.logger.Info("Starting registry heartbeat",
		zap.String("service_id", a.info.ID),
		zap.Duration("interval", a.interval))

	a.heartbeat(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.heartbeat(ctx)
		case <-ctx.Done():
			unregisterCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.registry.UnregisterService(unregisterCtx, a.info.ID); err != nil {
				a.logger.Warn("Failed to unregister service", zap.Error(err))
			}
			return nil
		}
	}
}

func (a *Advertiser) heartbeat(ctx context.Context) {
	load := a.load()

	a.info.Capacity = load.Capacity
	a.info.Load = load.Capacity - load.Available
	a.info.SetMetadata(load.Capacity, load.Available, load.Inflight, a.hostname)

	if err := a.registry.RegisterService(ctx, &a.info); err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("Failed to send heartbeat",
			zap.String("service_id", a.info.ID),
			zap.Int("available", load.Available),
			zap.Error(err))
		return
	}

	a.logger.Debug("Heartbeat sent",
		zap.Int("capacity", a.info.Capacity),
		zap.Int("load", a.info.Load),
		zap.Int("inflight", load.Inflight))
}
