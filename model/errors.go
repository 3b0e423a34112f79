package model

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindAlreadyRegistered Kind = "AlreadyRegistered"
	KindNotConfigured     Kind = "NotConfigured"
	KindCodec             Kind = "CodecError"
	KindTimeout           Kind = "Timeout"
	KindInternal          Kind = "InternalError"
)

// Error is the structured error reported to callers.
//
// Message is safe to show to clients. Cause is kept for logs and errors.Is/As
// and is never rendered by the API layer for KindInternal.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil && e.Kind != KindCodec {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf builds a validation-style error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, KindInternal for any other
// non-nil error, and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
