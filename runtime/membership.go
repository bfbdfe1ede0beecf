package runtime

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"sync"
)

// Membership caches the chat -> participants mapping in front of the
// durable chat store. Participant sets are immutable after creation, so the
// only writer is Register at chat-creation time and cache entries never go
// stale.
type Membership struct {
	mu    sync.RWMutex
	cache map[domain.ChatID][]string
	chats repositories.IChatRepository
}

func NewMembership(chats repositories.IChatRepository) *Membership {
	return &Membership{
		cache: make(map[domain.ChatID][]string),
		chats: chats,
	}
}

// Register is called once per chat, right after the durable create.
func (m *Membership) Register(chatID domain.ChatID, participants []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[chatID] = append([]string(nil), participants...)
}

// ParticipantsOf returns the ordered participant set, reading through to
// the chat store on a cache miss. Unknown chats surface ErrChatNotFound
// from the repository.
func (m *Membership) ParticipantsOf(chatID domain.ChatID) ([]string, error) {
	m.mu.RLock()
	participants, ok := m.cache[chatID]
	m.mu.RUnlock()
	if ok {
		return append([]string(nil), participants...), nil
	}

	chat, err := m.chats.GetChat(chatID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[chatID] = append([]string(nil), chat.Participants...)
	m.mu.Unlock()
	return append([]string(nil), chat.Participants...), nil
}
