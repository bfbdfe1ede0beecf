package repositories

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	AppendMessage(message domain.Message) error
	ReadMessages(chatID domain.ChatID, afterSeq int64, limit int) ([]domain.Message, error)
	LastSeq(chatID domain.ChatID) (int64, error)
	LastMessage(chatID domain.ChatID) (*domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// messageKey formats keys as "msg:{chat_id}:{seq_padded}" to:
//  1. Ensure seq ordering using 19-digit zero padding (lexicographical order).
//  2. Make history(afterSeq) a single Seek to the first key after the cursor.
func messageKey(chatID domain.ChatID, seq int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", chatID, seq))
}

func messagePrefix(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", chatID))
}

func lastMessageKey(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("chatlast:%s", chatID))
}

// AppendMessage persists a committed message and the chat's last-message
// pointer in a single transaction. The caller owns sequence assignment and
// serialization, the repository only guarantees atomicity of the write.
func (m MessageRepository) AppendMessage(message domain.Message) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ChatID, message.Seq), bytes); err != nil {
			return err
		}
		return txn.Set(lastMessageKey(message.ChatID), bytes)
	})
}

// ReadMessages returns messages with seq > afterSeq in ascending seq order.
// A limit <= 0 means unbounded.
func (m MessageRepository) ReadMessages(chatID domain.ChatID, afterSeq int64, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(chatID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(messageKey(chatID, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var message domain.Message
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// LastSeq returns the highest committed sequence number of a chat,
// zero when the chat has no messages yet. It seeks past the last possible
// key and walks backward to the newest one.
func (m MessageRepository) LastSeq(chatID domain.ChatID) (int64, error) {
	var lastSeq int64
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		key := string(it.Item().Key())
		parts := strings.Split(key, ":")
		seq, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed message key %q: %w", key, err)
		}
		lastSeq = seq
		return nil
	})
	return lastSeq, err
}

// LastMessage reads the chat's last-message pointer, nil when no message
// has ever been appended.
func (m MessageRepository) LastMessage(chatID domain.ChatID) (*domain.Message, error) {
	var message *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastMessageKey(chatID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			var decoded domain.Message
			if err := json.Unmarshal(value, &decoded); err != nil {
				return err
			}
			message = &decoded
			return nil
		})
	})
	return message, err
}
