package errors

import "fmt"

var (
	ErrChatNotFound     = fmt.Errorf("chat not found")
	ErrNotParticipant   = fmt.Errorf("user is not a participant of the chat")
	ErrTransportFailure = fmt.Errorf("transport push failed")
	ErrStorageFailure   = fmt.Errorf("durable write failed")

	ErrSessionClosed      = fmt.Errorf("session is closed")
	ErrNotEnoughMembers   = fmt.Errorf("a chat needs at least two participants")
	ErrEmptyContent       = fmt.Errorf("message content is empty")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
)
