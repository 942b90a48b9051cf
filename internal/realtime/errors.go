package realtime

import (
	"errors"
	"fmt"
)

// Kind classifies failures raised while handling a connection.
type Kind int

const (
	// KindAuthentication rejects a connection before any event is processed.
	KindAuthentication Kind = iota
	// KindAuthorization means the user is not a participant of the target chat.
	KindAuthorization
	// KindValidation means the event or its payload is malformed.
	KindValidation
	// KindCollaborator means the store or another dependency failed.
	KindCollaborator
	// KindRateLimited means the connection sent events faster than allowed.
	KindRateLimited
)

// Code returns the wire code reported in error events.
func (k Kind) Code() string {
	switch k {
	case KindAuthentication:
		return "unauthorized"
	case KindAuthorization:
		return "forbidden"
	case KindValidation:
		return "invalid_payload"
	case KindCollaborator:
		return "internal_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// Error is a failure reported to the originating connection.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotParticipant is wrapped by authorization failures.
var ErrNotParticipant = errors.New("not a participant of this chat")

// ErrServiceClosed is returned by Connect after Shutdown.
var ErrServiceClosed = errors.New("realtime service is shut down")

func unauthorized(err error) *Error {
	return &Error{Kind: KindAuthorization, Message: "You are not a participant of this chat", Err: err}
}

func invalid(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func collaborator(message string, err error) *Error {
	return &Error{Kind: KindCollaborator, Message: message, Err: err}
}

// asError converts any failure into an *Error, treating unknown errors as
// collaborator failures.
func asError(err error) *Error {
	var rtErr *Error
	if errors.As(err, &rtErr) {
		return rtErr
	}
	return collaborator("Internal error", err)
}
