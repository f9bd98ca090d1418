package errorx

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPolicy     Kind = "policy"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
	KindTransport  Kind = "transport"
	KindScheduler  Kind = "scheduler"
	KindInternal   Kind = "internal"
)

// Error is a comparable error value. Two Errors with the same Kind and Code
// match under errors.Is regardless of Message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e Error) Error() string {
	return e.Message
}

func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of base with detail appended to its message.
func Wrap(base Error, format string, args ...any) Error {
	return Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// Validation builds a validation error for malformed input.
func Validation(format string, args ...any) Error {
	return Error{Kind: KindValidation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or KindInternal when err is not an Error.
func KindOf(err error) Kind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
