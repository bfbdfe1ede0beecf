// Package sink adapts domain events to their side-effect consumers.
package sink

import (
	"chat-relay/domain/event"
	"chat-relay/pubsub"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Routing keys on the topic exchange.
const (
	keyMessageDelivered = "chat.message.delivered"
	keyPresenceChanged  = "chat.presence.changed"
)

// EventPublisher forwards presence and delivery events to the broker for
// UI/REST collaborators. Failures are logged, never propagated: the fan-out
// is best effort and the delivery core does not depend on it.
type EventPublisher struct {
	publisher pubsub.Publisher
	log       *slog.Logger
}

func NewEventPublisher(publisher pubsub.Publisher, log *slog.Logger) *EventPublisher {
	return &EventPublisher{publisher: publisher, log: log}
}

type deliveredPayload struct {
	SessionID string    `json:"session_id"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Seq       int64     `json:"seq"`
	At        time.Time `json:"at"`
}

type presencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

func (s *EventPublisher) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return s.publish(ctx, keyMessageDelivered, deliveredPayload{
			SessionID: evt.SessionID,
			ChatID:    string(evt.Message.ChatID),
			MessageID: evt.Message.ID.String(),
			Seq:       evt.Message.Seq,
			At:        evt.Message.CreatedAt,
		})
	case event.PresenceChanged:
		return s.publish(ctx, keyPresenceChanged, presencePayload{
			UserID: evt.UserID,
			Online: evt.Online,
		})
	default:
		return nil
	}
}

func (s *EventPublisher) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, key, body); err != nil {
		s.log.Warn("Broker publish failed", "key", key, "error", err)
	}
	return nil
}
