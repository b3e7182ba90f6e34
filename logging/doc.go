// Package logging provides a tiny abstraction over slog so components can
// depend on a minimal interface (Logger) while callers plug any structured
// logger.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that registries, buses and orchestrators use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - LogLLMCall / LogTaskExecution helpers with stable attribute names
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	reg := registry.New(func(o *registry.Options) { o.Logger = logger })
package logging
