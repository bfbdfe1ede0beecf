// Package runtime hosts the real-time delivery core: the message log, the
// connection registry, the session lifecycle and the delivery router. It
// orchestrates the system without containing storage or UI logic.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// chatLog is the per-chat critical section. Sequence assignment and the
// durable write happen under its mutex, so unrelated chats never contend.
type chatLog struct {
	mu      sync.Mutex
	lastSeq int64
	loaded  bool
}

// MessageLog is the single authority for per-chat sequence numbers. It
// wraps the durable repository with membership checks and serialized,
// gapless seq assignment: no message is visible to history before its
// append is durable, and a failed write never consumes a seq.
type MessageLog struct {
	mu       sync.Mutex
	chats    map[domain.ChatID]*chatLog
	repo     repositories.IMessageRepository
	members  contract.IMembership
	appended chan<- event.DomainEvent
	log      *slog.Logger
}

func NewMessageLog(
	log *slog.Logger,
	repo repositories.IMessageRepository,
	members contract.IMembership,
	appended chan<- event.DomainEvent) *MessageLog {
	return &MessageLog{
		chats:    make(map[domain.ChatID]*chatLog),
		repo:     repo,
		members:  members,
		appended: appended,
		log:      log,
	}
}

var _ contract.IMessageLog = (*MessageLog)(nil)

// Append validates the sender, assigns seq = lastSeq + 1 and persists the
// message before returning. The appended event is enqueued while the chat
// lock is still held, so the router receives per-chat events in seq order.
// Enqueueing is an in-memory handoff, never a transport push.
func (l *MessageLog) Append(ctx context.Context, chatID domain.ChatID, senderID, content string) (domain.Message, error) {
	participants, err := l.members.ParticipantsOf(chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !lo.Contains(participants, senderID) {
		return domain.Message{}, errors.ErrNotParticipant
	}

	cl := l.chatLog(chatID)
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if !cl.loaded {
		lastSeq, err := l.repo.LastSeq(chatID)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
		}
		cl.lastSeq = lastSeq
		cl.loaded = true
	}

	message := domain.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Seq:       cl.lastSeq + 1,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.AppendMessage(message); err != nil {
		// The counter is untouched, the failed attempt consumed no seq.
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	cl.lastSeq = message.Seq

	select {
	case l.appended <- event.MessageAppended{Message: message}:
	default:
		l.log.Warn("Router queue full, dropping live push, replay will cover delivery",
			"chat_id", chatID, "seq", message.Seq)
	}
	return message, nil
}

// History returns messages with seq > afterSeq in ascending order.
// Used for the initial chat load and for reconnect gap-filling.
func (l *MessageLog) History(chatID domain.ChatID, afterSeq int64, limit int) ([]domain.Message, error) {
	if _, err := l.members.ParticipantsOf(chatID); err != nil {
		return nil, err
	}
	messages, err := l.repo.ReadMessages(chatID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return messages, nil
}

// LastSeq is consistent with the last successfully appended message.
func (l *MessageLog) LastSeq(chatID domain.ChatID) (int64, error) {
	cl := l.chatLog(chatID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.loaded {
		return cl.lastSeq, nil
	}
	lastSeq, err := l.repo.LastSeq(chatID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	cl.lastSeq = lastSeq
	cl.loaded = true
	return lastSeq, nil
}

func (l *MessageLog) chatLog(chatID domain.ChatID) *chatLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLog{}
		l.chats[chatID] = cl
	}
	return cl
}
