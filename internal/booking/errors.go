package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a booking failure so callers can render it without parsing messages.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindPaymentPrecondition Kind = "payment_precondition"
	KindAuthorization       Kind = "authorization"
	KindState               Kind = "state"
	KindDownstream          Kind = "downstream"
	KindNotFound            Kind = "not_found"
)

const msgSlotUnavailable = "slot no longer available"

// Error carries a kind and a message safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var bookingErr *Error
	if errors.As(err, &bookingErr) {
		return bookingErr.Kind
	}
	return ""
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func authorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func stateError(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

func notFoundError(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

func downstreamError(message string, err error) *Error {
	return &Error{Kind: KindDownstream, Message: message, Err: err}
}
