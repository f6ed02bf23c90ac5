// Package apperr carries the coded service errors shared by every store.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for transport mapping.
type Kind string

const (
	KindInvalid  Kind = "invalid"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindInternal Kind = "internal"
)

// Error is a service failure identified by an "operation.reason" code.
type Error struct {
	code   string
	reason string
	kind   Kind
	err    error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Reason() string {
	return e.reason
}

func (e *Error) Kind() Kind {
	return e.kind
}

// New builds an Error for the operation and reason.
func New(operation, reason string, kind Kind, cause error) error {
	if kind == "" {
		kind = KindInternal
	}
	return &Error{
		code:   fmt.Sprintf("%s.%s", operation, reason),
		reason: reason,
		kind:   kind,
		err:    cause,
	}
}

func Invalid(operation, reason string, cause error) error {
	return New(operation, reason, KindInvalid, cause)
}

func NotFound(operation, reason string, cause error) error {
	return New(operation, reason, KindNotFound, cause)
}

func Conflict(operation, reason string, cause error) error {
	return New(operation, reason, KindConflict, cause)
}

func Internal(operation, reason string, cause error) error {
	return New(operation, reason, KindInternal, cause)
}

// KindOf reports the kind of the first Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// ReasonOf reports the reason of the first Error in the chain.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.reason
	}
	return "internal_error"
}

// CodeOf reports the code of the first Error in the chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}
