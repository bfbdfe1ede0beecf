package repositories

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, displayName, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
	SearchUsers(query, excludeID string, limit int) ([]User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository representation of an account. The online flag is
// never stored here, it is a derived read of the connection registry.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// userJSON carries the password hash on disk, User hides it from API output.
type userJSON struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func userIDKey(id string) []byte {
	return []byte("userid:" + id)
}

// CreateUser persists the account under its email key plus an id index.
// It returns the newly generated user ID.
func (u *UserRepository) CreateUser(email, displayName, hashedPassword string) (string, error) {
	newID := uuid.NewString()
	data, err := json.Marshal(userJSON{
		ID:           newID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userKey(email), data); err != nil {
			return err
		}
		return txn.Set(userIDKey(newID), []byte(email))
	})
	return newID, err
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var stored userJSON
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if err == badger.ErrKeyNotFound {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		})
	})
	if err != nil {
		return User{}, err
	}
	return toUser(stored), nil
}

// GetUserByID resolves the id index first, then loads the account.
func (u *UserRepository) GetUserByID(id string) (User, error) {
	var email string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err == badger.ErrKeyNotFound {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			email = string(value)
			return nil
		})
	})
	if err != nil {
		return User{}, err
	}
	return u.GetUserByEmail(email)
}

// SearchUsers scans accounts and matches the query against email and
// display name, case insensitive. The caller is excluded so the result can
// feed a "start a new chat" picker directly.
func (u *UserRepository) SearchUsers(query, excludeID string, limit int) ([]User, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(users) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var stored userJSON
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				if stored.ID == excludeID {
					return nil
				}
				if needle != "" &&
					!strings.Contains(strings.ToLower(stored.Email), needle) &&
					!strings.Contains(strings.ToLower(stored.DisplayName), needle) {
					return nil
				}
				users = append(users, toUser(stored))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

func toUser(stored userJSON) User {
	return User{
		ID:           stored.ID,
		Email:        stored.Email,
		DisplayName:  stored.DisplayName,
		PasswordHash: stored.PasswordHash,
		Roles:        stored.Roles,
		CreatedAt:    stored.CreatedAt,
	}
}
