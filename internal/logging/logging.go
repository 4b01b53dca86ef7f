// Package logging provides structured logging utilities.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger used by bootstrap code. Services take their
// own logger at construction and fall back to this one through Or.
var Logger *zap.Logger

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level
	Level string `json:"level"`

	// Format is json or console
	Format string `json:"format"`

	// Output is stdout or stderr
	Output string `json:"output"`
}

// DefaultConfig returns the defaults
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// New builds a logger from cfg without touching the process logger
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var out zapcore.WriteSyncer
	switch cfg.Output {
	case "stdout":
		out = zapcore.Lock(os.Stdout)
	case "stderr", "":
		out = zapcore.Lock(os.Stderr)
	default:
		return nil, fmt.Errorf("unknown log output %q (use stdout or stderr)", cfg.Output)
	}

	return zap.New(zapcore.NewCore(encoder, out, level), zap.AddCaller()), nil
}

// Initialize sets up the process logger
func Initialize(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// Or returns l, or the process logger when l is nil
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	if Logger != nil {
		return Logger
	}
	return zap.NewNop()
}

// Traced returns the trace ID of the span in ctx as a field, or a skipped
// field when there is no recording trace
func Traced(ctx context.Context) zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return zap.Skip()
	}
	return zap.String("trace_id", sc.TraceID().String())
}

// Sync flushes the process logger
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func init() {
	_ = Initialize(DefaultConfig())
}
