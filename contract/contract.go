package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport is the per-session bidirectional channel seen as a capability.
// Send never blocks, a full transport is a failed push. SendWait blocks
// until there is room, bounded by the transport's write deadline, so a
// replay burst larger than the buffer can drain through a live consumer.
// Either way the caller decides what a failure means.
type Transport interface {
	Send(e event.DomainEvent) error
	SendWait(e event.DomainEvent) error
	Close() error
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IMessageLog is the durable, append-only, per-chat ordered message store.
type IMessageLog interface {
	Append(ctx context.Context, chatID domain.ChatID, senderID, content string) (domain.Message, error)
	History(chatID domain.ChatID, afterSeq int64, limit int) ([]domain.Message, error)
	LastSeq(chatID domain.ChatID) (int64, error)
}

// IMembership maps a chat to its fixed, ordered participant set.
type IMembership interface {
	Register(chatID domain.ChatID, participants []string)
	ParticipantsOf(chatID domain.ChatID) ([]string, error)
}
