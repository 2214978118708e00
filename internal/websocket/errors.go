package websocket

import (
	"errors"
	"fmt"
)

var (
	ErrClientDisconnected = errors.New("client disconnected")

	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnrecognizedEvent  = errors.New("unrecognized event")
	ErrMissingUserID      = errors.New("missing user id")
	ErrInvalidRoomID      = errors.New("invalid conversation id")
	ErrInvalidPayload     = errors.New("invalid message payload")
	ErrPersistenceFailed  = errors.New("message persistence failed")
	ErrPersistenceTimeout = errors.New("message persistence timed out")
)

// errorReply maps a processing error to the event sent back to the offending
// client. Errors never leave that client.
func errorReply(err error) *Message {
	switch {
	case errors.Is(err, ErrInvalidRoomID):
		return NewErrorReply(EventJoinConversationError, "Invalid conversation id.")
	case errors.Is(err, ErrInvalidPayload):
		return NewErrorReply(EventSendMessageError, "Missing message data (conversationId, senderId or token).")
	case errors.Is(err, ErrPersistenceTimeout):
		return NewErrorReply(EventSendMessageError, "Failed to send message: the message API did not answer in time.")
	case errors.Is(err, ErrPersistenceFailed):
		return NewErrorReply(EventSendMessageError, fmt.Sprintf("Failed to send message: %s", unwrapDetail(err)))
	case errors.Is(err, ErrMissingUserID):
		return NewErrorReply(EventError, "Missing user id.")
	case errors.Is(err, ErrUnrecognizedEvent):
		return NewErrorReply(EventError, "Unrecognized event type.")
	default:
		return NewErrorReply(EventError, "Invalid message format.")
	}
}

// persistenceError keeps the upstream detail separate from the sentinel
type persistenceError struct {
	sentinel error
	cause    error
}

func (e *persistenceError) Error() string {
	return fmt.Sprintf("%v: %v", e.sentinel, e.cause)
}

func (e *persistenceError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

func unwrapDetail(err error) string {
	var pe *persistenceError
	if errors.As(err, &pe) {
		return pe.cause.Error()
	}
	return err.Error()
}
