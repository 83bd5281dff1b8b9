package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/pagerender/internal/common/configtypes"
)

// StatsLoggerName is the logger name stats records are emitted under
const StatsLoggerName = "stats"

// DynamicLogger is a zap.Logger whose output levels can be changed after startup
type DynamicLogger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
	configured   configtypes.LogConfig
}

// SwitchToConfiguredLevel applies the levels from the loaded configuration.
// Used after startup messages were printed at INFO.
func (dl *DynamicLogger) SwitchToConfiguredLevel() {
	global := parseLogLevel(dl.configured.Level)
	dl.Info("Switching logger to configured level", zap.String("level", dl.configured.Level))

	if dl.consoleLevel != nil {
		dl.consoleLevel.SetLevel(resolveLogLevel(dl.configured.Console.Level, global))
	}
	if dl.fileLevel != nil {
		dl.fileLevel.SetLevel(resolveLogLevel(dl.configured.File.Level, global))
	}
}

// EnsureInfoLevelForShutdown lowers outputs to INFO so the shutdown sequence is visible
func (dl *DynamicLogger) EnsureInfoLevelForShutdown() {
	lowered := lowerToInfo(dl.consoleLevel)
	lowered = lowerToInfo(dl.fileLevel) || lowered
	if lowered {
		dl.Info("Switched to INFO level for shutdown visibility")
	}
}

func lowerToInfo(level *zap.AtomicLevel) bool {
	if level == nil || level.Level() <= zap.InfoLevel {
		return false
	}
	level.SetLevel(zap.InfoLevel)
	return true
}

// NewLogger builds a logger writing to the enabled console and file outputs
func NewLogger(config configtypes.LogConfig) (*DynamicLogger, error) {
	global := parseLogLevel(config.Level)
	dl := &DynamicLogger{configured: config}

	var cores []zapcore.Core

	if config.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.Console.Level, global))
		dl.consoleLevel = &level
		cores = append(cores, zapcore.NewCore(createEncoder(config.Console.Format), zapcore.Lock(os.Stdout), level))
	}

	if config.File.Enabled {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.File.Level, global))
		dl.fileLevel = &level
		writer := createFileWriter(config.File.Path, config.File.Rotation)
		cores = append(cores, zapcore.NewCore(createEncoder(config.File.Format), writer, level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	dl.Logger = zap.New(zapcore.NewTee(cores...))
	return dl, nil
}

// NewLoggerWithStartupOverride starts at INFO when the configured level is
// higher, so startup messages are always printed. Call SwitchToConfiguredLevel
// once startup completes.
func NewLoggerWithStartupOverride(config configtypes.LogConfig) (*DynamicLogger, error) {
	if parseLogLevel(config.Level) <= zap.InfoLevel {
		return NewLogger(config)
	}

	startup := config
	startup.Level = configtypes.LogLevelInfo
	if startup.Console.Enabled && startup.Console.Level == "" {
		startup.Console.Level = configtypes.LogLevelInfo
	}
	if startup.File.Enabled && startup.File.Level == "" {
		startup.File.Level = configtypes.LogLevelInfo
	}

	dl, err := NewLogger(startup)
	if err != nil {
		return nil, err
	}
	dl.configured = config
	return dl, nil
}

// NewStatsLogger returns the logger used for per-render statistics records.
// With a stats file configured, records go to a dedicated rotated JSON file
// containing only the message; otherwise they go to the outputs of base at
// INFO whatever level those outputs are currently set to.
func NewStatsLogger(config configtypes.StatsConfig, base *zap.Logger) (*zap.Logger, error) {
	if !config.IsEnabled() {
		return zap.NewNop(), nil
	}

	if !config.File.Enabled {
		return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return infoFloorCore{Core: core}
		})).Named(StatsLoggerName), nil
	}

	if config.File.Path == "" {
		return nil, fmt.Errorf("stats.file.path must be specified when stats file is enabled")
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		createFileWriter(config.File.Path, config.File.Rotation),
		zap.InfoLevel,
	)
	return zap.New(core).Named(StatsLoggerName), nil
}

// infoFloorCore enables INFO and above regardless of the wrapped core's level
type infoFloorCore struct {
	zapcore.Core
}

func (c infoFloorCore) Enabled(level zapcore.Level) bool {
	return level >= zapcore.InfoLevel
}

func (c infoFloorCore) With(fields []zapcore.Field) zapcore.Core {
	return infoFloorCore{Core: c.Core.With(fields)}
}

func (c infoFloorCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case configtypes.LogLevelDebug:
		return zap.DebugLevel
	case configtypes.LogLevelWarn:
		return zap.WarnLevel
	case configtypes.LogLevelError:
		return zap.ErrorLevel
	case configtypes.LogLevelDPanic:
		return zap.DPanicLevel
	case configtypes.LogLevelPanic:
		return zap.PanicLevel
	case configtypes.LogLevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// resolveLogLevel prefers the per-output level, falling back to the global one
func resolveLogLevel(outputLevel string, global zapcore.Level) zapcore.Level {
	if outputLevel == "" {
		return global
	}
	return parseLogLevel(outputLevel)
}

func createEncoder(format string) zapcore.Encoder {
	switch format {
	case configtypes.LogFormatJSON:
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case configtypes.LogFormatText:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
}

func createFileWriter(path string, rotation configtypes.RotationConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	})
}

// NewDefaultLogger is the console logger used before configuration is loaded
func NewDefaultLogger() (*DynamicLogger, error) {
	return NewLogger(configtypes.LogConfig{
		Level: configtypes.LogLevelDebug,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
	})
}
