package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Wire and protocol
	ErrDecode         = fmt.Errorf("payload is not a JSON object of strings")
	ErrInvalidMessage = fmt.Errorf("invalid message")
	ErrUnknownType    = fmt.Errorf("unknown message type")

	// Registries
	ErrChatNotFound       = fmt.Errorf("chat not found")
	ErrIDInUse            = fmt.Errorf("id already in use")
	ErrIDSpaceExhausted   = fmt.Errorf("unable to generate a unique id")
	ErrNotEnoughMembers   = fmt.Errorf("a private chat needs two distinct members")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrHistoryUnavailable = fmt.Errorf("message history unavailable")
)
