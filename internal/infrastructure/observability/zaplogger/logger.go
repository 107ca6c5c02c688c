// Package zaplogger implements observability.Logger on zap with a JSON encoder.
package zaplogger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is a zap level name. Empty means info.
	Level string
	// File, when set, receives a copy of every entry next to stdout.
	File   string
	Fields []observability.Field
}

type Logger struct{ l *zap.Logger }

var _ observability.Logger = (*Logger)(nil)

func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("zaplogger: level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	sinks := []string{"stdout"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("zaplogger: log dir: %w", err)
		}
		sinks = append(sinks, opts.File)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	initial := make(map[string]any, len(opts.Fields))
	for _, f := range opts.Fields {
		initial[f.Key] = f.Value
	}

	l, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      sinks,
		ErrorOutputPaths: sinks,
		InitialFields:    initial,
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
	}.Build()
	if err != nil {
		return nil, fmt.Errorf("zaplogger: build: %w", err)
	}
	return &Logger{l: l}, nil
}

// Wrap adapts an existing zap logger, mostly for tests with zaptest/observer.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{l: l}
}

func (z *Logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return z
	}
	return &Logger{l: z.l.With(zapFields(fields)...)}
}

func (z *Logger) Debug(msg string, fields ...observability.Field) { z.log(zapcore.DebugLevel, msg, fields) }
func (z *Logger) Info(msg string, fields ...observability.Field)  { z.log(zapcore.InfoLevel, msg, fields) }
func (z *Logger) Warn(msg string, fields ...observability.Field)  { z.log(zapcore.WarnLevel, msg, fields) }
func (z *Logger) Error(msg string, fields ...observability.Field) { z.log(zapcore.ErrorLevel, msg, fields) }

func (z *Logger) log(lvl zapcore.Level, msg string, fields []observability.Field) {
	if ce := z.l.Check(lvl, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (z *Logger) Sync() error { return z.l.Sync() }

func zapFields(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, len(fs))
	for i, f := range fs {
		switch v := f.Value.(type) {
		case error:
			out[i] = zap.NamedError(f.Key, v)
		case string:
			out[i] = zap.String(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}
