// Package projection builds local read models from observed events.
// Handles ordering and deduplication. Does not emit events or interact
// with UI directly.
package projection

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"sync"
)

// Timeline keeps an in-memory per-chat tail of committed messages, deduped
// by seq. It backs the debug endpoint and gives list views a warm last-
// message answer without touching disk.
type Timeline struct {
	mu     sync.RWMutex
	byChat map[domain.ChatID][]domain.Message
	depth  int
}

// NewTimeline retains at most depth messages per chat, zero means
// unbounded.
func NewTimeline(depth int) *Timeline {
	return &Timeline{
		byChat: make(map[domain.ChatID][]domain.Message),
		depth:  depth,
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	appended, ok := e.(event.MessageAppended)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tail := t.byChat[appended.Message.ChatID]
	if n := len(tail); n > 0 && appended.Message.Seq <= tail[n-1].Seq {
		return nil // already projected
	}
	tail = append(tail, appended.Message)
	if t.depth > 0 && len(tail) > t.depth {
		tail = tail[len(tail)-t.depth:]
	}
	t.byChat[appended.Message.ChatID] = tail
	return nil
}

// LastMessage returns the newest projected message of a chat, nil when
// nothing has been observed yet.
func (t *Timeline) LastMessage(chatID domain.ChatID) *domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tail := t.byChat[chatID]
	if len(tail) == 0 {
		return nil
	}
	last := tail[len(tail)-1]
	return &last
}

// Recent returns up to n newest projected messages in ascending seq order.
func (t *Timeline) Recent(chatID domain.ChatID, n int) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tail := t.byChat[chatID]
	if n <= 0 || n >= len(tail) {
		return append([]domain.Message(nil), tail...)
	}
	return append([]domain.Message(nil), tail[len(tail)-n:]...)
}
