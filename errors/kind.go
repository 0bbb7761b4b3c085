package errors

import (
	"errors"
	"fmt"
)

// Kind discriminates messaging failures so callers can branch on the failure
// without matching error strings.
type Kind string

// Messaging error kinds
const (
	KindConnectionFailed   Kind = "connection_failed"
	KindInvalidMessage     Kind = "invalid_message_format"
	KindSubscriptionFailed Kind = "subscription_failed"
	KindInvalidTopic       Kind = "invalid_topic"
	KindParseError         Kind = "message_parse_error"
)

// Class maps a kind onto the retry classification.
func (k Kind) Class() ErrorClass {
	switch k {
	case KindConnectionFailed, KindSubscriptionFailed:
		return ErrorTransient
	case KindInvalidMessage, KindInvalidTopic, KindParseError:
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Error is a tagged messaging error. Op names the operation that failed
// (for example "connection.Send").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged messaging error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a tagged messaging error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first tagged error in the chain, or "" if none.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// IsKind reports whether any tagged error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var me *Error
		if !errors.As(err, &me) {
			return false
		}
		if me.Kind == kind {
			return true
		}
		err = me.Err
	}
	return false
}
