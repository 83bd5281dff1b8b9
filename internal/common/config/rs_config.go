package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/configtypes"
	"github.com/edgecomet/pagerender/internal/common/yamlutil"
	"github.com/edgecomet/pagerender/pkg/types"
)

type (
	RedisConfig = configtypes.RedisConfig
	LogConfig   = configtypes.LogConfig
)

// RSConfig represents Render Service configuration
type RSConfig struct {
	Server   RSServerConfig             `yaml:"server"`
	Render   RenderConfig               `yaml:"render"`
	Chrome   ChromeYAMLConfig           `yaml:"chrome"`
	Log      LogConfig                  `yaml:"log"`
	Stats    configtypes.StatsConfig    `yaml:"stats"`
	Metrics  configtypes.MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig                `yaml:"redis"`
	Registry configtypes.RegistryConfig `yaml:"registry"`
}

// RSServerConfig represents RS server configuration
type RSServerConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
}

// RenderConfig bounds what a single render request may ask for
type RenderConfig struct {
	DefaultTimeout    types.Duration `yaml:"default_timeout"`
	MaxTimeout        types.Duration `yaml:"max_timeout"` // requested timeouts above this are clamped
	MaxViewport       int            `yaml:"max_viewport"`
	BlockPrivateHosts bool           `yaml:"block_private_hosts"`
}

// ChromeYAMLConfig represents Chrome configuration for YAML
type ChromeYAMLConfig struct {
	PoolSize string         `yaml:"pool_size"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Restart  RestartConfig  `yaml:"restart"`
	Viewport ViewportConfig `yaml:"viewport"`
}

// WarmupConfig represents Chrome warmup configuration
type WarmupConfig struct {
	URL     string         `yaml:"url"`
	Timeout types.Duration `yaml:"timeout"`
}

// RestartConfig represents Chrome restart policy configuration
type RestartConfig struct {
	AfterCount int            `yaml:"after_count"`
	AfterTime  types.Duration `yaml:"after_time"`
}

// ViewportConfig is the browser window size used when a request does not set one
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

const (
	// SafetyMargin is the buffer added to max_timeout for server timeout calculation
	// so FastHTTP does not kill connections before a render resolves
	SafetyMargin = 10 * time.Second

	defaultRenderTimeout     = types.DefaultRenderTimeout
	defaultMaxTimeout        = 90 * time.Second
	defaultMaxViewport       = 4096
	defaultViewportWidth     = 1024
	defaultViewportHeight    = 768
	defaultRestartAfterCount = 100
	defaultRestartAfterTime  = 60 * time.Minute
	defaultWarmupTimeout     = 10 * time.Second
	defaultHeartbeatInterval = 1 * time.Second
	defaultMetricsPath       = "/metrics"
	defaultMetricsNamespace  = "pagerender"
)

// CalculateServerTimeout returns the FastHTTP server timeout
func (r *RenderConfig) CalculateServerTimeout() time.Duration {
	return time.Duration(r.MaxTimeout) + SafetyMargin
}

// RSConfigManager handles RS configuration
type RSConfigManager struct {
	config     *RSConfig
	configPath string
	logger     *zap.Logger
}

// NewRSConfigManager creates a new RS config manager
func NewRSConfigManager(configPath string, logger *zap.Logger) (*RSConfigManager, error) {
	cm := &RSConfigManager{
		configPath: configPath,
		logger:     logger,
	}

	if err := cm.LoadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

// LoadConfig loads configuration from file
func (cm *RSConfigManager) LoadConfig() error {
	cfg, err := LoadRSConfig(cm.configPath)
	if err != nil {
		return err
	}

	cm.config = cfg
	cm.logger.Debug("Configuration loaded",
		zap.String("path", cm.configPath),
		zap.String("rs", cfg.Server.ID))

	return nil
}

// GetConfig returns the current configuration
func (cm *RSConfigManager) GetConfig() *RSConfig {
	return cm.config
}

// applyDefaults applies default values to configuration fields
func (cfg *RSConfig) applyDefaults() {
	// If both outputs are disabled (zero values), enable console by default
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Render.DefaultTimeout == 0 {
		cfg.Render.DefaultTimeout = types.Duration(defaultRenderTimeout)
	}
	if cfg.Render.MaxTimeout == 0 {
		cfg.Render.MaxTimeout = types.Duration(defaultMaxTimeout)
	}
	if cfg.Render.MaxViewport == 0 {
		cfg.Render.MaxViewport = defaultMaxViewport
	}

	if cfg.Chrome.PoolSize == "" {
		cfg.Chrome.PoolSize = "auto"
	}
	if cfg.Chrome.Warmup.Timeout == 0 {
		cfg.Chrome.Warmup.Timeout = types.Duration(defaultWarmupTimeout)
	}
	if cfg.Chrome.Restart.AfterCount == 0 {
		cfg.Chrome.Restart.AfterCount = defaultRestartAfterCount
	}
	if cfg.Chrome.Restart.AfterTime == 0 {
		cfg.Chrome.Restart.AfterTime = types.Duration(defaultRestartAfterTime)
	}
	if cfg.Chrome.Viewport.Width == 0 {
		cfg.Chrome.Viewport.Width = defaultViewportWidth
	}
	if cfg.Chrome.Viewport.Height == 0 {
		cfg.Chrome.Viewport.Height = defaultViewportHeight
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}

	if cfg.Registry.HeartbeatInterval == 0 {
		cfg.Registry.HeartbeatInterval = types.Duration(defaultHeartbeatInterval)
	}
}

// Validate checks configuration validity
func (cfg *RSConfig) Validate() error {
	if cfg.Server.ID == "" {
		return fmt.Errorf("server.id is required")
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	} else if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	// Render validation
	if cfg.Render.DefaultTimeout <= 0 {
		return fmt.Errorf("render.default_timeout must be positive")
	}
	if cfg.Render.MaxTimeout <= 0 {
		return fmt.Errorf("render.max_timeout must be positive")
	}
	if cfg.Render.DefaultTimeout > cfg.Render.MaxTimeout {
		return fmt.Errorf("render.default_timeout (%s) must not exceed render.max_timeout (%s)",
			cfg.Render.DefaultTimeout, cfg.Render.MaxTimeout)
	}
	if cfg.Render.MaxViewport <= 0 {
		return fmt.Errorf("render.max_viewport must be positive")
	}

	// Chrome validation
	if cfg.Chrome.PoolSize != "auto" {
		size, err := strconv.Atoi(cfg.Chrome.PoolSize)
		if err != nil || size <= 0 {
			return fmt.Errorf("chrome.pool_size must be 'auto' or positive integer")
		}
	}
	if cfg.Chrome.Warmup.URL == "" {
		return fmt.Errorf("chrome.warmup.url is required")
	}
	if cfg.Chrome.Warmup.Timeout <= 0 {
		return fmt.Errorf("chrome.warmup.timeout must be positive")
	}
	if cfg.Chrome.Restart.AfterCount <= 0 {
		return fmt.Errorf("chrome.restart.after_count must be positive")
	}
	if cfg.Chrome.Restart.AfterTime <= 0 {
		return fmt.Errorf("chrome.restart.after_time must be positive")
	}
	if cfg.Chrome.Viewport.Width <= 0 || cfg.Chrome.Viewport.Width > cfg.Render.MaxViewport {
		return fmt.Errorf("chrome.viewport.width must be between 1 and %d", cfg.Render.MaxViewport)
	}
	if cfg.Chrome.Viewport.Height <= 0 || cfg.Chrome.Viewport.Height > cfg.Render.MaxViewport {
		return fmt.Errorf("chrome.viewport.height must be between 1 and %d", cfg.Render.MaxViewport)
	}

	if err := cfg.validateLog(); err != nil {
		return err
	}

	if cfg.Stats.IsEnabled() && cfg.Stats.File.Enabled && cfg.Stats.File.Path == "" {
		return fmt.Errorf("stats.file.path must be specified when stats file is enabled")
	}

	if err := cfg.validateMetrics(); err != nil {
		return err
	}

	if cfg.Registry.Enabled {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when registry is enabled")
		}
		if cfg.Registry.HeartbeatInterval <= 0 {
			return fmt.Errorf("registry.heartbeat_interval must be positive")
		}
	}

	return nil
}

func (cfg *RSConfig) validateLog() error {
	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", cfg.Log.Level)
	}

	validConsoleFormats := map[string]bool{
		configtypes.LogFormatJSON:    true,
		configtypes.LogFormatConsole: true,
	}
	if cfg.Log.Console.Enabled && !validConsoleFormats[cfg.Log.Console.Format] {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", cfg.Log.Console.Format)
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}

		validFileFormats := map[string]bool{
			configtypes.LogFormatJSON: true,
			configtypes.LogFormatText: true,
		}
		if !validFileFormats[cfg.Log.File.Format] {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}

		rotation := cfg.Log.File.Rotation
		if rotation.MaxSize < 0 || rotation.MaxAge < 0 || rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation values must be >= 0")
		}
	}

	return nil
}

func (cfg *RSConfig) validateMetrics() error {
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		} else if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}

		metricsPort, err1 := configtypes.GetPortFromListen(cfg.Metrics.Listen)
		serverPort, err2 := configtypes.GetPortFromListen(cfg.Server.Listen)
		if err1 == nil && err2 == nil && metricsPort == serverPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d) when metrics enabled", metricsPort, serverPort)
		}
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}

	// Prometheus namespace must match: [a-zA-Z_][a-zA-Z0-9_]*
	if matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*$`, cfg.Metrics.Namespace); !matched {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	return nil
}

// LoadRSConfig loads RS configuration from a file
func LoadRSConfig(configPath string) (*RSConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg RSConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
