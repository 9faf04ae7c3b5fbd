// Package logging builds the zap loggers used across the gateway.
// Every component takes a *zap.Logger in its constructor and falls back to
// zap.NewNop when given nil, so packages never log through globals.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production JSON encoding by default;
// debug switches to development encoding with DebugLevel enabled.
func New(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Component returns a named child logger for one gateway component.
// A nil parent yields a nop logger so constructors can be called bare in
// tests.
func Component(parent *zap.Logger, name string) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(name)
}
