// Package kverrors gives the storage engine's four failure kinds a concrete
// Go type: IOError, CorruptionError, LogWriteError, InternalError. Each
// wraps an optional cause and carries enough structured detail (path,
// offset) to make a log line actionable without parsing a message string.
package kverrors

import "fmt"

// Code categorizes a kverrors error for programmatic handling.
type Code string

const (
	CodeIO         Code = "IO_ERROR"
	CodeCorruption Code = "CORRUPTION_ERROR"
	CodeLogWrite   Code = "LOG_WRITE_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

type base struct {
	code   Code
	msg    string
	path   string
	offset int64
	cause  error
}

func (e *base) Error() string {
	s := string(e.code) + ": " + e.msg
	if e.path != "" {
		s += fmt.Sprintf(" (path=%s)", e.path)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *base) Unwrap() error { return e.cause }

func (e *base) Code() Code { return e.code }

func (e *base) Path() string { return e.path }

func (e *base) Offset() int64 { return e.offset }

// IOError reports a failed underlying filesystem operation.
type IOError struct{ *base }

func NewIOError(cause error, msg string) *IOError {
	return &IOError{&base{code: CodeIO, msg: msg, cause: cause}}
}

func (e *IOError) WithPath(path string) *IOError {
	e.base.path = path
	return e
}

// CorruptionError reports a truncated segment, malformed log line, an
// implausible length field, or non-UTF-8 where text was expected.
type CorruptionError struct{ *base }

func NewCorruptionError(cause error, msg string) *CorruptionError {
	return &CorruptionError{&base{code: CodeCorruption, msg: msg, cause: cause}}
}

func (e *CorruptionError) WithPath(path string) *CorruptionError {
	e.base.path = path
	return e
}

func (e *CorruptionError) WithOffset(offset int64) *CorruptionError {
	e.base.offset = offset
	return e
}

// LogWriteError reports a write-ahead log append that wrote fewer bytes
// than requested.
type LogWriteError struct{ *base }

func NewLogWriteError(cause error, msg string) *LogWriteError {
	return &LogWriteError{&base{code: CodeLogWrite, msg: msg, cause: cause}}
}

// InternalError reports an invariant violation, such as an index that was
// expected to be non-empty.
type InternalError struct{ *base }

func NewInternalError(msg string) *InternalError {
	return &InternalError{&base{code: CodeInternal, msg: msg}}
}

// CodeOf extracts the Code from any kverrors error, or CodeInternal for
// anything else.
func CodeOf(err error) Code {
	switch e := err.(type) {
	case *IOError:
		return e.Code()
	case *CorruptionError:
		return e.Code()
	case *LogWriteError:
		return e.Code()
	case *InternalError:
		return e.Code()
	default:
		return CodeInternal
	}
}
