package configtypes

import (
	"github.com/edgecomet/pagerender/pkg/types"
)

// Log level constants
const (
	LogLevelDebug  = "debug"
	LogLevelInfo   = "info"
	LogLevelWarn   = "warn"
	LogLevelError  = "error"
	LogLevelDPanic = "dpanic"
	LogLevelPanic  = "panic"
	LogLevelFatal  = "fatal"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// StatsConfig controls the per-render statistics channel. When File is disabled,
// stats records go through the main logger under the "stats" name.
type StatsConfig struct {
	Enabled *bool           `yaml:"enabled,omitempty"` // nil = enabled
	File    StatsFileConfig `yaml:"file"`
}

// IsEnabled reports whether stats records should be emitted
func (s StatsConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// StatsFileConfig routes stats records to a dedicated rotated JSON-lines file
type StatsFileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RegistryConfig controls advertisement of this render service in Redis
type RegistryConfig struct {
	Enabled           bool           `yaml:"enabled"`
	HeartbeatInterval types.Duration `yaml:"heartbeat_interval"`
}
