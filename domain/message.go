// Package domain contains core concepts of the messaging system.
// This file defines Message events and related rules.
// Messages are immutable once appended and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. Seq is assigned by the
// message log at durable append time and defines the total order of the
// owning chat.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    ChatID    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}
