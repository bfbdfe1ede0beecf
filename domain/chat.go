package domain

import "time"

type ChatID string

// Chat is a named set of participants sharing an ordered message history.
// The participant set is fixed at creation, there is no add/remove path.
type Chat struct {
	ID           ChatID    `json:"id"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"is_group"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}
