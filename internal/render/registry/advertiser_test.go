package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdvertiser_Run(t *testing.T) {
	registry, mr := setupRegistry(t)

	load := Load{Capacity: 4, Available: 3, Inflight: 1}
	advertiser := NewAdvertiser(registry,
		ServiceInfo{ID: "rs-1", Address: "10.0.0.5", Port: 8050, Version: "dev"},
		"render-host", 10*time.Millisecond,
		func() Load { return load },
		zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- advertiser.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.Exists(serviceKeyPrefix + "rs-1")
	}, time.Second, 5*time.Millisecond)

	info := storedService(t, mr, "rs-1")
	require.NotNil(t, info)
	assert.Equal(t, 4, info.Capacity)
	assert.Equal(t, 1, info.Load)
	assert.Equal(t, "render-host", info.Metadata["hostname"])
	assert.Equal(t, "1", info.Metadata["inflight"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("advertiser did not stop")
	}

	assert.Nil(t, storedService(t, mr, "rs-1"), "advertisement removed on stop")
	assert.False(t, mr.Exists(serviceListKey))
}

func TestNewAdvertiser_DefaultInterval(t *testing.T) {
	registry, _ := setupRegistry(t)
	advertiser := NewAdvertiser(registry, ServiceInfo{ID: "rs-1"}, "", 0, func() Load { return Load{} }, zaptest.NewLogger(t))
	assert.Equal(t, HeartbeatInterval, advertiser.interval)
}
