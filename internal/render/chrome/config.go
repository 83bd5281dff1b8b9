package chrome

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/edgecomet/pagerender/internal/common/config"
)

const (
	defaultMaxHTMLSize = 20 << 20 // 20MB

	autoPoolReservedBytes = 2 << 30   // kept for the OS and this process
	autoPoolInstanceBytes = 500 << 20 // approximate footprint of one Chrome
	autoPoolMin           = 2
	autoPoolMax           = 50
)

// Config holds the configuration for Chrome pool and instances
type Config struct {
	PoolSize        string // "auto" or integer string
	WarmupURL       string
	WarmupTimeout   time.Duration
	ShutdownTimeout time.Duration

	RestartAfterCount int
	RestartAfterTime  time.Duration

	// Viewport is used when a request leaves width or height unset
	Viewport    Viewport
	MaxHTMLSize int
}

// NewConfigFromYAML converts the chrome section of the service config
func NewConfigFromYAML(cfg config.ChromeYAMLConfig, shutdownTimeout time.Duration) *Config {
	return &Config{
		PoolSize:          cfg.PoolSize,
		WarmupURL:         cfg.Warmup.URL,
		WarmupTimeout:     cfg.Warmup.Timeout.ToDuration(),
		ShutdownTimeout:   shutdownTimeout,
		RestartAfterCount: cfg.Restart.AfterCount,
		RestartAfterTime:  cfg.Restart.AfterTime.ToDuration(),
		Viewport: Viewport{
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
		},
		MaxHTMLSize: defaultMaxHTMLSize,
	}
}

// DefaultConfig is used in tests to avoid constructing full Config structs
func DefaultConfig() *Config {
	return &Config{
		PoolSize:          "auto",
		WarmupURL:         "https://example.com/",
		WarmupTimeout:     10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RestartAfterCount: 100,
		RestartAfterTime:  60 * time.Minute,
		Viewport:          Viewport{Width: 1024, Height: 768},
		MaxHTMLSize:       defaultMaxHTMLSize,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PoolSize != "auto" {
		size, err := strconv.Atoi(c.PoolSize)
		if err != nil {
			return fmt.Errorf("pool size must be 'auto' or valid integer")
		}
		if size <= 0 {
			return fmt.Errorf("pool size must be positive")
		}
	}

	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("restart after count must be positive")
	}
	if c.RestartAfterTime <= 0 {
		return fmt.Errorf("restart after time must be positive")
	}
	if c.WarmupURL == "" {
		return fmt.Errorf("warmup URL cannot be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.MaxHTMLSize <= 0 {
		return fmt.Errorf("max HTML size must be positive")
	}

	return nil
}

// CalculatePoolSize returns the configured pool size, or sizes the pool from system RAM
// when set to "auto": (total RAM - 2GB) / 500MB, bounded to [2, 50].
func (c *Config) CalculatePoolSize() int {
	if c.PoolSize != "auto" {
		if size, err := strconv.Atoi(c.PoolSize); err == nil && size > 0 {
			return size
		}
	}
	return autoPoolSize()
}

func autoPoolSize() int {
	totalRAM := int64(8 << 30) // fallback when memory cannot be read
	if v, err := mem.VirtualMemory(); err == nil {
		totalRAM = int64(v.Total)
	}

	size := int((totalRAM - autoPoolReservedBytes) / autoPoolInstanceBytes)
	return max(autoPoolMin, min(size, autoPoolMax))
}
