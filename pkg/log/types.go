package log

// Logger is the logging interface used across the module.
type Logger interface {
	// Debug logs a message for low-level debugging.
	// keysAndValues are treated as key-value pairs (e.g., "method", name).
	Debug(msg string, keysAndValues ...any)
	// Info logs general information about progress and state changes.
	Info(msg string, keysAndValues ...any)
	// Warn logs unexpected situations that are not errors.
	Warn(msg string, keysAndValues ...any)
	// Error logs failures that prevent normal operation.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a critical error and may terminate the program.
	Fatal(msg string, keysAndValues ...any)
	// WithKV returns a logger with an extra key-value pair attached to
	// all future log messages.
	WithKV(key string, value any) Logger
	// WithName returns a logger with the given name appended to the
	// logger hierarchy, separated by dots.
	WithName(name string) Logger
	// Name returns the logger's name.
	Name() string
}

// Level represents the severity level of a log message.
type Level string

const (
	// LevelDebug is the most verbose level, used for debugging purposes.
	LevelDebug Level = "debug"
	// LevelInfo is used for informational messages.
	LevelInfo Level = "info"
	// LevelWarn is used for warnings that indicate potential issues.
	LevelWarn Level = "warn"
	// LevelError is used for errors that indicate something went wrong.
	LevelError Level = "error"
	// LevelFatal is used for fatal errors that typically end the program.
	LevelFatal Level = "fatal"
)
