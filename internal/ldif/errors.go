package ldif

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrEndOfInput is returned by Reader.ReadEntry/ReadChangeRecord once
// every configured source has been exhausted.
var ErrEndOfInput = errors.New("ldif: end of input")

// errRetry is an internal sentinel: the framer consumed a record that
// produced no output (a standalone "version:" header) and the caller
// should read the next record.
var errRetry = errors.New("ldif: retry")

// ParseError is a structured parse failure tagged with the line number of
// the offending record, a human-readable reason, and whether the reader
// can continue with the next record (spec.md §7.2).
type ParseError struct {
	Line        int
	Message     string
	CanContinue bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ldif: line %d: %s", e.Line, e.Message)
}

// newParseError builds a ParseError that allows the reader to continue
// with the next record — the common case for malformed-record errors.
func newParseError(line int, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...), CanContinue: true}
}

// newFatalParseError builds a ParseError after which the reader should
// not be used again (reserved for corruption that leaves framer state
// inconsistent; none of the grammar errors in this package currently
// need it, but callers can rely on the field being present).
func newFatalParseError(line int, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...), CanContinue: false}
}

// wrapIO annotates an I/O failure with a stack trace and the operation
// that failed, the way internal/backend.wrapStorageError annotates
// storage errors — but using github.com/pkg/errors since, unlike BER
// decode errors, an LDIF I/O failure can originate across a real
// filesystem or URL-fetch boundary, where a captured stack is worth the
// allocation.
func wrapIO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}
