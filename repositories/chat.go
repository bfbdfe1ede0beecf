package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type IChatRepository interface {
	CreateChat(chat domain.Chat) error
	GetChat(chatID domain.ChatID) (domain.Chat, error)
	ChatsFor(userID string) ([]domain.Chat, error)
}

type ChatRepository struct {
	db *badger.DB
}

func NewChatRepository(db *badger.DB) IChatRepository {
	return &ChatRepository{db: db}
}

func chatKey(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("chat:%s", chatID))
}

// userChatKey indexes chat membership per user so that listing a user's
// chats is a prefix scan instead of a full table walk.
func userChatKey(userID string, chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("userchat:%s:%s", userID, chatID))
}

// CreateChat persists the chat and one index entry per participant in a
// single transaction. There is no update path, membership is immutable
// after creation.
func (c *ChatRepository) CreateChat(chat domain.Chat) error {
	bytes, err := json.Marshal(chat)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(chatKey(chat.ID), bytes); err != nil {
			return err
		}
		for _, participant := range chat.Participants {
			if err := txn.Set(userChatKey(participant, chat.ID), []byte(chat.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *ChatRepository) GetChat(chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chatKey(chatID))
		if err == badger.ErrKeyNotFound {
			return errors.ErrChatNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &chat)
		})
	})
	return chat, err
}

// ChatsFor resolves the per-user index and loads every chat the user
// belongs to, in no particular order. Callers sort by activity.
func (c *ChatRepository) ChatsFor(userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("userchat:%s:", userID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var chatIDs []domain.ChatID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				chatIDs = append(chatIDs, domain.ChatID(value))
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, chatID := range chatIDs {
			item, err := txn.Get(chatKey(chatID))
			if err != nil {
				return err
			}
			err = item.Value(func(value []byte) error {
				var chat domain.Chat
				if err := json.Unmarshal(value, &chat); err != nil {
					return err
				}
				chats = append(chats, chat)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return chats, err
}
