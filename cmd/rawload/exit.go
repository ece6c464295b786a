package main

import (
	"errors"

	"rawload/internal/config"
	"rawload/internal/loader"
)

// Exit codes.
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1  // verify mismatch, metrics init, cancellation, anything unclassified
	ExitUsageError      = 2  // unknown command or flag
	ExitPanic           = 3  // recovered panic
	ExitConfigError     = 10 // invalid configuration
	ExitConnectionError = 11 // database unreachable or credentials refused
	ExitFileError       = 12 // source file missing or unreadable
	ExitParseError      = 13 // malformed source file
	ExitWriteError      = 14 // database rejected the table replace
)

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() []error { return []error{errUsage, e.err} }

// ExitCodeForError maps an error to the process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, errUsage):
		return ExitUsageError
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, loader.ErrConnection):
		return ExitConnectionError
	case errors.Is(err, loader.ErrFileAccess):
		return ExitFileError
	case errors.Is(err, loader.ErrParse):
		return ExitParseError
	case errors.Is(err, loader.ErrWrite):
		return ExitWriteError
	}

	if loader.IsConnectionError(err) {
		return ExitConnectionError
	}
	return ExitGeneralError
}
