package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newChatService(t *testing.T, moderator *moderation.Moderator) (*ChatService, chan event.DomainEvent) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	chats := repositories.NewChatRepository(db)
	messages := repositories.NewMessageRepository(db, slog.Default())
	members := runtime.NewMembership(chats)
	appended := make(chan event.DomainEvent, 64)
	messageLog := runtime.NewMessageLog(slog.Default(), messages, members, appended)
	return NewChatService(chats, messages, members, messageLog, moderator), appended
}

func TestChatService_CreateChat_Always_Includes_Creator(t *testing.T) {
	req := require.New(t)
	service, _ := newChatService(t, nil)

	// The request omits the creator, duplicates bob
	chat, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob", "bob", "clara"},
		Name:         "weekend plans",
		IsGroup:      true,
	})
	req.NoError(err)
	req.Equal([]string{"alice", "bob", "clara"}, chat.Participants)
	req.NotEmpty(chat.ID)
}

func TestChatService_CreateChat_Needs_Two_Members(t *testing.T) {
	req := require.New(t)
	service, _ := newChatService(t, nil)

	_, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"alice"},
	})
	req.ErrorIs(err, errors.ErrNotEnoughMembers)
}

func TestChatService_SendMessage_Commits_And_Sequences(t *testing.T) {
	req := require.New(t)
	service, appended := newChatService(t, nil)

	chat, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob"},
	})
	req.NoError(err)

	first, err := service.SendMessage(context.Background(), domain.SendMessageCommand{
		ChatID:   chat.ID,
		SenderID: "alice",
		Content:  "  hello bob  ",
	})
	req.NoError(err)
	req.Equal(int64(1), first.Seq)
	req.Equal("hello bob", first.Content)

	second, err := service.SendMessage(context.Background(), domain.SendMessageCommand{
		ChatID:   chat.ID,
		SenderID: "bob",
		Content:  "hi alice",
	})
	req.NoError(err)
	req.Equal(int64(2), second.Seq)
	req.Len(appended, 2)

	lastSeq, err := service.LastSeq(domain.HistoryCommand{ChatID: chat.ID, CallerID: "bob"})
	req.NoError(err)
	req.Equal(int64(2), lastSeq)

	_, err = service.LastSeq(domain.HistoryCommand{ChatID: chat.ID, CallerID: "mallory"})
	req.ErrorIs(err, errors.ErrNotParticipant)
}

func TestChatService_SendMessage_Rejects_Empty_Content(t *testing.T) {
	req := require.New(t)
	service, _ := newChatService(t, nil)

	chat, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob"},
	})
	req.NoError(err)

	_, err = service.SendMessage(context.Background(), domain.SendMessageCommand{
		ChatID:   chat.ID,
		SenderID: "alice",
		Content:  "   \n\t ",
	})
	req.ErrorIs(err, errors.ErrEmptyContent)
}

func TestChatService_SendMessage_Censors_Content(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"darn"}, '*')
	req.NoError(err)
	service, _ := newChatService(t, moderator)

	chat, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob"},
	})
	req.NoError(err)

	message, err := service.SendMessage(context.Background(), domain.SendMessageCommand{
		ChatID:   chat.ID,
		SenderID: "alice",
		Content:  "darn traffic",
	})
	req.NoError(err)
	req.Equal("**** traffic", message.Content)

	// The stored copy is the censored one
	history, err := service.History(domain.HistoryCommand{ChatID: chat.ID, CallerID: "bob"})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("**** traffic", history[0].Content)
}

func TestChatService_History_Requires_Membership(t *testing.T) {
	req := require.New(t)
	service, _ := newChatService(t, nil)

	chat, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob"},
	})
	req.NoError(err)

	_, err = service.History(domain.HistoryCommand{ChatID: chat.ID, CallerID: "mallory"})
	req.ErrorIs(err, errors.ErrNotParticipant)

	_, err = service.History(domain.HistoryCommand{ChatID: "nope", CallerID: "alice"})
	req.ErrorIs(err, errors.ErrChatNotFound)
}

func TestChatService_ChatsFor_Sorted_By_Activity(t *testing.T) {
	req := require.New(t)
	service, _ := newChatService(t, nil)

	quiet, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"bob"},
		Name:         "quiet",
	})
	req.NoError(err)
	time.Sleep(2 * time.Millisecond)
	busy, err := service.CreateChat(domain.CreateChatCommand{
		CreatorID:    "alice",
		Participants: []string{"clara"},
		Name:         "busy",
	})
	req.NoError(err)

	// The busy chat got a message, the quiet one did not
	_, err = service.SendMessage(context.Background(), domain.SendMessageCommand{
		ChatID:   busy.ID,
		SenderID: "alice",
		Content:  "ping",
	})
	req.NoError(err)

	summaries, err := service.ChatsFor("alice")
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal(busy.ID, summaries[0].Chat.ID)
	req.NotNil(summaries[0].LastMessage)
	req.Equal(quiet.ID, summaries[1].Chat.ID)
	req.Nil(summaries[1].LastMessage)
}
