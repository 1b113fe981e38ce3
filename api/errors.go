// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for unixbridge.

package api

import (
	"errors"
	"fmt"
)

// Terminal pull and lifecycle outcomes that are not failures.
var (
	// ErrCancelled reports that a blocking operation was aborted through the
	// component's cancellation token. The caller may reset the token and retry.
	ErrCancelled = errors.New("operation cancelled")

	// ErrEndOfStream reports an orderly peer shutdown.
	ErrEndOfStream = errors.New("end of stream")

	// ErrNotReady reports an operation attempted outside the required state.
	ErrNotReady = errors.New("component not ready")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeOpen covers socket create, bind, listen and connect failures.
	ErrCodeOpen
	// ErrCodeIO covers read, accept and availability query failures on an
	// established socket.
	ErrCodeIO
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeOpen:
		return "open"
	case ErrCodeIO:
		return "io"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code ErrorCode
	Op   string // failing operation, e.g. "bind", "read"
	Path string // socket path, empty when unknown
	Err  error  // underlying cause, usually a syscall.Errno
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", e.Op, e.Path)
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code only, so callers can test
// errors.Is(err, &api.Error{Code: api.ErrCodeIO}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Err == nil
}

// NewOpenError creates an ErrCodeOpen error.
func NewOpenError(op, path string, err error) *Error {
	return &Error{Code: ErrCodeOpen, Op: op, Path: path, Err: err}
}

// NewIOError creates an ErrCodeIO error.
func NewIOError(op, path string, err error) *Error {
	return &Error{Code: ErrCodeIO, Op: op, Path: path, Err: err}
}

// IsOpenError reports whether err carries ErrCodeOpen.
func IsOpenError(err error) bool { return codeOf(err) == ErrCodeOpen }

// IsIOError reports whether err carries ErrCodeIO.
func IsIOError(err error) bool { return codeOf(err) == ErrCodeIO }

func codeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeOK
}
