package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config controls how the process logger is built.
type Config struct {
	Level      string // minimum level: debug, info, warn, error
	Format     string // "json" or "console"
	Output     string // "stdout", "stderr", or a file path
	TimeFormat string // layout for the time field
}

// DefaultConfig returns a console configuration suitable for development
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "console", Output: "stdout", TimeFormat: defaultTimeFormat}
}

// ProductionConfig returns a JSON configuration suitable for production
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Format = "json"
	return cfg
}

// New creates a zap logger from the given configuration. Unset fields fall
// back to DefaultConfig values. A file output that cannot be opened is
// reported as an error rather than silently degraded to stdout.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	encoding := "json"
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout(cfg.TimeFormat))
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	if strings.ToLower(cfg.Format) == "console" {
		encoding = "console"
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Encoding:         encoding,
		EncoderConfig:    ec,
		OutputPaths:      []string{sinkPath(cfg.Output)},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

var logLevels = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
	"fatal":   zapcore.FatalLevel,
}

// parseLevel maps a level name to its zapcore level. Unknown names land
// on Info.
func parseLevel(level string) zapcore.Level {
	if lvl, ok := logLevels[strings.ToLower(level)]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}

func timeLayout(layout string) string {
	if layout == "" {
		return defaultTimeFormat
	}
	return layout
}

// sinkPath normalizes the output names zap treats specially. Anything
// else is taken as a file path and opened for append.
func sinkPath(output string) string {
	switch strings.ToLower(output) {
	case "", "stdout":
		return "stdout"
	case "stderr":
		return "stderr"
	default:
		return output
	}
}

// Sync flushes buffered entries, called before process exit.
func Sync(logger *zap.Logger) error {
	return logger.Sync()
}
