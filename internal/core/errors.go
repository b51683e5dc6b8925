package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindBusinessRule
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "forbidden"
	case KindBusinessRule:
		return "business rule violation"
	case KindAuthentication:
		return "unauthorized"
	default:
		return "internal error"
	}
}

// Error is a domain error tagged with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Kind sentinels. errors.Is(err, ErrNotFound) matches any NotFound error.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrBusinessRule   = &Error{Kind: KindBusinessRule}
	ErrAuthentication = &Error{Kind: KindAuthentication}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the message of the first *Error in err's chain, falling
// back to the kind name.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	}
	return KindInternal.String()
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func BusinessRulef(format string, args ...any) error {
	return &Error{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...)}
}
