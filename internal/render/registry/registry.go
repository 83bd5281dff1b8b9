package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/redis"
)

const (
	serviceKeyPrefix = "service:render:"
	serviceListKey   = "services:render:list"

	// RegistryTTL allows two missed heartbeats before a service disappears
	RegistryTTL       = 3 * time.Second
	HeartbeatInterval = 1 * time.Second
)

// ServiceRegistry stores render service advertisements in Redis
type ServiceRegistry struct {
	redis  *redis.Client
	logger *zap.Logger
}

// ServiceInfo is what a render service advertises about itself
type ServiceInfo struct {
	ID       string            `json:"id"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Capacity int               `json:"capacity"`
	Load     int               `json:"load"`
	LastSeen time.Time         `json:"last_seen"`
	Version  string            `json:"version,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (si *ServiceInfo) URL() string {
	return fmt.Sprintf("http://%s:%d", si.Address, si.Port)
}

// SetMetadata records pool occupancy and the host name
func (si *ServiceInfo) SetMetadata(poolSize, available, inflight int, hostname string) {
	if si.Metadata == nil {
		si.Metadata = make(map[string]string)
	}
	si.Metadata["pool_size"] = strconv.Itoa(poolSize)
	si.Metadata["available"] = strconv.Itoa(available)
	si.Metadata["inflight"] = strconv.Itoa(inflight)
	si.Metadata["hostname"] = hostname
}

func NewServiceRegistry(redisClient *redis.Client, logger *zap.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		redis:  redisClient,
		logger: logger,
	}
}

// RegisterService writes info with a fresh LastSeen and RegistryTTL expiry
func (sr *ServiceRegistry) RegisterService(ctx context.Context, info *ServiceInfo) error {
	if info.ID == "" {
		return fmt.Errorf("service ID is required")
	}
	if info.Address == "" {
		return fmt.Errorf("service address is required")
	}
	if info.Port <= 0 {
		return fmt.Errorf("service port must be positive")
	}

	info.LastSeen = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal service info: %w", err)
	}

	if err := sr.redis.Set(ctx, serviceKeyPrefix+info.ID, data, RegistryTTL); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	if err := sr.redis.HSet(ctx, serviceListKey, info.ID, info.URL()); err != nil {
		return fmt.Errorf("failed to add service to list: %w", err)
	}

	return nil
}

// UnregisterService removes the advertisement and the list entry
func (sr *ServiceRegistry) UnregisterService(ctx context.Context, serviceID string) error {
	if serviceID == "" {
		return fmt.Errorf("service ID is required")
	}

	if err := sr.redis.Del(ctx, serviceKeyPrefix+serviceID); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}

	if err := sr.redis.HDel(ctx, serviceListKey, serviceID); err != nil {
		sr.logger.Warn("Failed to remove service from list",
			zap.String("service_id", serviceID),
			zap.Error(err))
	}

	sr.logger.Info("Service unregistered", zap.String("service_id", serviceID))
	return nil
}
