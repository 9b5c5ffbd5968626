// Package errs defines the error taxonomy shared across p8fs core components.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should react to it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindDependency Kind = "dependency"
	KindInternal   Kind = "internal"
)

// Error is the structured error type returned by every p8fs core package:
// a kind, the operation that produced it, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string // component/operation that produced the error, e.g. "repository.Upsert"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeValue returns the string error kind.
func (e *Error) CodeValue() string { return string(e.Kind) }

// RetryableStatus reports whether the operation that produced this error is
// safe to retry. Only Transient errors are retryable.
func (e *Error) RetryableStatus() bool { return e.Kind == KindTransient }

// CodedError is implemented by *Error; kept distinct so callers can depend on
// the interface without importing this package's concrete type everywhere.
type CodedError interface {
	error
	CodeValue() string
	RetryableStatus() bool
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op, message string) *Error { return New(KindValidation, op, message) }
func NotFound(op, message string) *Error   { return New(KindNotFound, op, message) }
func Conflict(op, message string) *Error   { return New(KindConflict, op, message) }

func Transient(op, message string, err error) *Error {
	return Wrap(KindTransient, op, message, err)
}

func Dependency(op, message string, err error) *Error {
	return Wrap(KindDependency, op, message, err)
}

func Internal(op, message string, err error) *Error {
	return Wrap(KindInternal, op, message, err)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
