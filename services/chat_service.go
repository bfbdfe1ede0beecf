package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	CreateChat(cmd domain.CreateChatCommand) (domain.Chat, error)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	History(cmd domain.HistoryCommand) ([]domain.Message, error)
	LastSeq(cmd domain.HistoryCommand) (int64, error)
	ChatsFor(userID string) ([]ChatSummary, error)
}

// ChatSummary decorates a chat with its last message for list views. The
// pointer is nil for chats without any message yet.
type ChatSummary struct {
	Chat        domain.Chat     `json:"chat"`
	LastMessage *domain.Message `json:"last_message,omitempty"`
}

type ChatService struct {
	chats     repositories.IChatRepository
	messages  repositories.IMessageRepository
	members   contract.IMembership
	log       contract.IMessageLog
	moderator *moderation.Moderator // nil disables censoring
}

func NewChatService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	members contract.IMembership,
	messageLog contract.IMessageLog,
	moderator *moderation.Moderator) *ChatService {
	return &ChatService{
		chats:     chats,
		messages:  messages,
		members:   members,
		log:       messageLog,
		moderator: moderator,
	}
}

// CreateChat persists the chat and registers its fixed participant set in
// the membership index. The creator is always part of the chat, even when
// the request omits them.
func (s *ChatService) CreateChat(cmd domain.CreateChatCommand) (domain.Chat, error) {
	participants := lo.Uniq(append([]string{cmd.CreatorID}, cmd.Participants...))
	if len(participants) < 2 {
		return domain.Chat{}, errors.ErrNotEnoughMembers
	}

	chat := domain.Chat{
		ID:           domain.ChatID(uuid.NewString()),
		Name:         cmd.Name,
		IsGroup:      cmd.IsGroup,
		Participants: participants,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.chats.CreateChat(chat); err != nil {
		return domain.Chat{}, err
	}
	s.members.Register(chat.ID, participants)
	return chat, nil
}

// SendMessage runs the censoring pass, then appends through the message
// log. The log validates membership and owns sequencing, a returned message
// is durably committed.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if s.moderator != nil {
		content = s.moderator.Censor(content)
	}
	return s.log.Append(ctx, cmd.ChatID, cmd.SenderID, content)
}

// History serves the durable message sequence, callers must be chat
// participants.
func (s *ChatService) History(cmd domain.HistoryCommand) ([]domain.Message, error) {
	if err := s.requireParticipant(cmd.CallerID, cmd); err != nil {
		return nil, err
	}
	return s.log.History(cmd.ChatID, cmd.AfterSeq, cmd.Limit)
}

// LastSeq reports the chat's newest committed sequence number. Paired with
// a history page it tells the caller whether it has caught up.
func (s *ChatService) LastSeq(cmd domain.HistoryCommand) (int64, error) {
	if err := s.requireParticipant(cmd.CallerID, cmd); err != nil {
		return 0, err
	}
	return s.log.LastSeq(cmd.ChatID)
}

// requireParticipant resolves the command's chat and checks the caller
// against its fixed participant set.
func (s *ChatService) requireParticipant(callerID string, cmd domain.Command) error {
	participants, err := s.members.ParticipantsOf(cmd.Chat())
	if err != nil {
		return err
	}
	if !lo.Contains(participants, callerID) {
		return errors.ErrNotParticipant
	}
	return nil
}

// ChatsFor lists every chat of the user, most recent activity first, each
// decorated with its last message.
func (s *ChatService) ChatsFor(userID string) ([]ChatSummary, error) {
	chats, err := s.chats.ChatsFor(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		last, err := s.messages.LastMessage(chat.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ChatSummary{Chat: chat, LastMessage: last})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

func lastActivity(summary ChatSummary) time.Time {
	if summary.LastMessage != nil {
		return summary.LastMessage.CreatedAt
	}
	return summary.Chat.CreatedAt
}
