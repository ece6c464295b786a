// Package logging provides the loader's console and null loggers.
//
// Available implementations:
//   - ConsoleLogger: writes level-prefixed lines to an io.Writer
//   - NullLogger: discards everything (tests)
//
// All implementations are safe for concurrent use.
package logging

// Logger is the logging surface used by the loader and the CLI.
type Logger interface {
	// Verbose logs diagnostics; only printed in verbose mode.
	Verbose(format string, args ...any)

	// Info logs normal progress.
	Info(format string, args ...any)

	// Error logs failures.
	Error(format string, args ...any)
}

var (
	_ Logger = (*ConsoleLogger)(nil)
	_ Logger = (*NullLogger)(nil)
)
