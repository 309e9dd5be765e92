// Package logger defines the structured logging interface used across the
// engine. A zap-backed implementation ships here; embedders with their own
// logging implement the four methods and pass it through WithLogger.
package logger

// Logger is the engine's logging contract. Fields may be nil.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything. Used in tests and as the default for
// components built without a logger.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
