package log

var _ Logger = &NoopLogger{}

// NoopLogger is a Logger implementation that discards all log messages.
// It is the default logger for embedded use where the host application
// has not supplied one.
type NoopLogger struct {
	name string
}

// NewNoopLogger creates a new NoopLogger.
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, keysAndValues ...any) {}
func (l *NoopLogger) Info(msg string, keysAndValues ...any)  {}
func (l *NoopLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *NoopLogger) Error(msg string, keysAndValues ...any) {}
func (l *NoopLogger) Fatal(msg string, keysAndValues ...any) {}

// WithKV returns the logger unchanged.
func (l *NoopLogger) WithKV(key string, value any) Logger { return l }

// WithName returns a NoopLogger carrying the given name.
func (l *NoopLogger) WithName(name string) Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &NoopLogger{name: name}
}

// Name returns the logger's name.
func (l *NoopLogger) Name() string { return l.name }
