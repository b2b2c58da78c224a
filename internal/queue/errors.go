package queue

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindDependencyUnavailable Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	default:
		return "dependency_unavailable"
	}
}

// Error is returned by every Engine operation. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that did not originate in the engine are treated as
// dependency failures.
func KindOf(err error) Kind {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr.Kind
	}
	return KindDependencyUnavailable
}

// MessageOf returns the client-facing message carried by err.
func MessageOf(err error) string {
	var qerr *Error
	if errors.As(err, &qerr) && qerr.Kind != KindDependencyUnavailable {
		return qerr.Message
	}
	return "Service temporarily unavailable."
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFound(msg string, err error) error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

func invalidState(msg string) error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func unavailable(op string, err error) error {
	var qerr *Error
	if errors.As(err, &qerr) {
		return err
	}
	return &Error{Kind: KindDependencyUnavailable, Message: op + " failed", Err: err}
}
