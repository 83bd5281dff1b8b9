package chrome

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ChromeStatus represents the current state of a Chrome instance
type ChromeStatus int

const (
	// ChromeStatusIdle indicates the instance is ready for rendering
	ChromeStatusIdle ChromeStatus = iota
	// ChromeStatusRendering indicates the instance is currently processing a request
	ChromeStatusRendering
	// ChromeStatusRestarting indicates the instance is being restarted
	ChromeStatusRestarting
	// ChromeStatusDead indicates the instance has crashed or been terminated
	ChromeStatusDead
)

// String returns the string representation of ChromeStatus
func (s ChromeStatus) String() string {
	switch s {
	case ChromeStatusIdle:
		return "idle"
	case ChromeStatusRendering:
		return "rendering"
	case ChromeStatusRestarting:
		return "restarting"
	case ChromeStatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ChromeInstance is one headless browser process. Each render opens its own tab.
type ChromeInstance struct {
	ID              int
	ctx             context.Context    // browser context, replaced on restart
	cancel          context.CancelFunc // nil until the browser is launched
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	logger          *zap.Logger
	browserVersion  string
	viewport        Viewport
	maxHTML         int

	status           int32 // ChromeStatus
	requestsDone     int32
	lastUsedNano     int64
	currentRequestID string // set on acquire, cleared on release
}

// Viewport is a browser window size in CSS pixels
type Viewport struct {
	Width  int
	Height int
}

// PoolStats is a point-in-time view of the Chrome pool
type PoolStats struct {
	TotalInstances     int           `json:"pool_size"`
	AvailableInstances int           `json:"available_instances"`
	ActiveInstances    int           `json:"active_instances"`
	TotalRenders       int64         `json:"total_renders"`
	TotalRestarts      int64         `json:"total_restarts"`
	Uptime             time.Duration `json:"-"`
}
