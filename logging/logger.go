// Package logging builds the zap logger every other package in this
// repository takes directly, configured with the level/writer/fields
// options callers need at startup.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modbus-emu/slave/common"
)

// Option configures a logger at construction time.
type Option func(*config)

type config struct {
	level  common.LogLevel
	writer io.Writer
	fields map[string]interface{}
}

// WithLevel sets the minimum level that will reach the sink.
func WithLevel(level common.LogLevel) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithWriter sets the destination for log output.
func WithWriter(writer io.Writer) Option {
	return func(c *config) {
		c.writer = writer
	}
}

// WithFields attaches fields present on every entry the logger writes.
func WithFields(fields map[string]interface{}) Option {
	return func(c *config) {
		if c.fields == nil {
			c.fields = make(map[string]interface{}, len(fields))
		}
		for k, v := range fields {
			c.fields[k] = v
		}
	}
}

// toZapLevel maps the server's five-level scheme onto zap's four built-in
// levels; Trace shares DebugLevel since zap has no level below Debug.
func toZapLevel(level common.LogLevel) zapcore.Level {
	switch level {
	case common.LevelTrace, common.LevelDebug:
		return zapcore.DebugLevel
	case common.LevelInfo:
		return zapcore.InfoLevel
	case common.LevelWarn:
		return zapcore.WarnLevel
	case common.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1 // LevelNone: nothing passes
	}
}

// LevelFromString parses a level name (error, warn, info, debug, trace,
// none) into a common.LogLevel, defaulting to LevelInfo for an empty or
// unrecognized string.
func LevelFromString(s string) common.LogLevel {
	switch s {
	case "trace":
		return common.LevelTrace
	case "debug":
		return common.LevelDebug
	case "warn":
		return common.LevelWarn
	case "error":
		return common.LevelError
	case "none":
		return common.LevelNone
	default:
		return common.LevelInfo
	}
}

// NewLogger builds a *zap.Logger writing to stdout at info level by
// default, with a console encoder matching the rest of the fleet's output.
func NewLogger(options ...Option) *zap.Logger {
	c := &config{level: common.LevelInfo, writer: os.Stdout}
	for _, opt := range options {
		opt(c)
	}

	atom := zap.NewAtomicLevelAt(toZapLevel(c.level))
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(encoder, zapcore.AddSync(c.writer), atom)
	zl := zap.New(core)

	if len(c.fields) > 0 {
		fields := make([]zap.Field, 0, len(c.fields))
		for k, v := range c.fields {
			fields = append(fields, zap.Any(k, v))
		}
		zl = zl.With(fields...)
	}

	return zl
}
