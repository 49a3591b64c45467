// Package log provides structured logging for the provider transport.
//
// The Logger interface decouples the rest of the module from the
// underlying logging backend. The default implementation is backed by
// Uber's zap and supports console, logfmt and json output formats.
// A no-op implementation is available for callers that do not want any
// log output, which is the default for embedded library use.
package log
