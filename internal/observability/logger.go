// Package observability wires logging and Prometheus metrics for stormguard.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is used for CLI commands (console output on stderr).
	CLILogger *zap.Logger

	// ServerLogger is used for the HTTP server (structured, JSON by default).
	ServerLogger *zap.Logger
)

// InitCLILogger initializes the CLI logger. Verbose lowers the level to debug.
func InitCLILogger(serviceName string, verbose bool) error {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build cli logger: %w", err)
	}

	CLILogger = logger.Named(serviceName)
	return nil
}

// InitServerLogger initializes the server logger with the configured level
// and encoding (json or console).
func InitServerLogger(serviceName, level, encoding string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	cfg.Encoding = encoding
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		return fmt.Errorf("build server logger: %w", err)
	}

	ServerLogger = logger
	return nil
}

// parseLogLevel converts a config level string to a zap level. Unknown
// strings fall back to info.
func parseLogLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered log entries. Call on shutdown; sync errors on
// stderr are expected and ignored.
func Sync() {
	if ServerLogger != nil {
		_ = ServerLogger.Sync()
	}
	if CLILogger != nil {
		_ = CLILogger.Sync()
	}
}
