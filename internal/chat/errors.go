package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a failed chat operation.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindValidation      Kind = "validation"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Client-visible failure reasons.
const (
	MsgAuthRequired    = "authentication required"
	MsgInvalidToken    = "invalid token"
	MsgUserUnavailable = "user not found or inactive"
	MsgInvalidRole     = "invalid role"
	MsgContentRequired = "Message content is required"
	MsgContentTooLong  = "Message content is too long"
	MsgRoomIDRequired  = "Room ID is required"
	MsgRoomNotFound    = "Room not found"
	MsgAccessDenied    = "Access denied"
	MsgTooManyMessages = "Too many message ids"
	MsgOperationFailed = "Operation failed"
	MsgInvalidMessage  = "Invalid message"
)

// Error is an expected failure of a chat operation. Message is safe to show to
// clients; Err keeps the underlying cause for logs.
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

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgOperationFailed, Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of err, KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindInternal
}

// ClientMessage returns the reason to report to the client. Internal failures never
// leak their cause.
func ClientMessage(err error) string {
	var chatErr *Error
	if errors.As(err, &chatErr) && chatErr.Kind != KindInternal {
		return chatErr.Message
	}
	return MsgOperationFailed
}
