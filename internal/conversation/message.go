package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who sent a message: one of the roster roles or Human.
type Role string

// Human is the sender of messages typed by the person who set the goal.
const Human Role = "user"

// Message is a single chat message. It is never modified after creation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Role      `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps content with a fresh id and the current time.
func NewMessage(content string, sender Role) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
}
