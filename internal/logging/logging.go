// Package logging provides the engine's structured logger, built on zap
// per this repository's ambient stack choice. One logger is built per run
// and passed to every component; loggers are not named per component.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at the given level ("trace"/"debug"/"info"/
// "warning"/"error"/"fatality"), writing human-readable console output for
// "cli"/"vscode"/"hook" modes or JSON for "server" mode.
func New(level string, jsonOutput bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !jsonOutput {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(levelToZap(level))
	return cfg.Build()
}

// levelToZap maps the engine's surface-level severities (§3 ErrorLevel) onto
// zapcore levels. "trace" has no direct zap equivalent and maps to Debug.
func levelToZap(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warning":
		return zapcore.WarnLevel
	case "error", "fatality":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() *zap.Logger { return zap.NewNop() }
