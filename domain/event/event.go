package event

import (
	"chat-relay/domain"
)

type DomainEvent interface {
	Chat() domain.ChatID
}

// MessageAppended fires once a message is durably committed to the log.
// The delivery router consumes it for live fan-out, projections and
// publishers consume it for everything else.
type MessageAppended struct {
	Message domain.Message
}

func (e MessageAppended) Chat() domain.ChatID {
	return e.Message.ChatID
}

// MessageDelivered fires after a live push reached a session's transport.
type MessageDelivered struct {
	SessionID string
	Message   domain.Message
}

func (e MessageDelivered) Chat() domain.ChatID {
	return e.Message.ChatID
}

// PresenceChanged fires on the first register and the last unregister of a
// user's sessions. It carries no chat, presence is a per-user fact.
type PresenceChanged struct {
	UserID string
	Online bool
}

func (e PresenceChanged) Chat() domain.ChatID {
	return ""
}
