// Package logger provides the structured logger used across the heap
// manager. Every subsystem receives a *zap.SugaredLogger through its Config
// struct; this package is the single place where the logger is constructed
// so that encoding, level and output destination stay consistent.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger for the given service name. The configuration favors
// machine-readable JSON output with ISO8601 timestamps, which keeps GC pause
// and collection logs easy to correlate with host-side telemetry.
func New(service string) *zap.SugaredLogger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(config),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)

	return zap.New(core).Sugar().With("service", service)
}

// NewNop returns a logger that discards everything. Tests and benchmarks use
// it to keep collection paths quiet without changing any call sites.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
