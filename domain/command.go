package domain

import "time"

// Command is a chat-scoped request. The chat id drives routing, locking
// and membership checks before any state changes.
type Command interface {
	Chat() ChatID
}

type SendMessageCommand struct {
	ChatID    ChatID
	SenderID  string
	Content   string
	CreatedAt time.Time
}

func (c SendMessageCommand) Chat() ChatID {
	return c.ChatID
}

type HistoryCommand struct {
	ChatID   ChatID
	CallerID string
	AfterSeq int64
	Limit    int
}

func (c HistoryCommand) Chat() ChatID {
	return c.ChatID
}

type CreateChatCommand struct {
	CreatorID    string
	Participants []string
	Name         string
	IsGroup      bool
}
