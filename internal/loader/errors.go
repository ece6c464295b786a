package loader

import (
	"errors"
	"strings"
)

// Error taxonomy. Every error returned by Load, Inspect and Verify wraps one
// of these (or a context error), alongside the underlying cause.
var (
	// ErrFileAccess: the source file is missing or unreadable.
	ErrFileAccess = errors.New("file access")

	// ErrParse: malformed row, missing header, bad quoting or encoding.
	ErrParse = errors.New("parse")

	// ErrConnection: the database is unreachable or refused the credentials.
	ErrConnection = errors.New("connection")

	// ErrWrite: the database rejected the drop, create or insert.
	ErrWrite = errors.New("write")

	// ErrMismatch: Verify found a table that does not match its file.
	ErrMismatch = errors.New("mismatch")
)

var connectionPatterns = []string{
	"connection refused",
	"no such host",
	"failed to connect",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"server closed",
	"authentication failed",
	"password authentication",
	"access denied for user",
	"login failed",
}

// IsConnectionError reports whether err looks like a lost or refused
// connection rather than a statement the server rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
