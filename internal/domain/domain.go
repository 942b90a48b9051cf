// Package domain holds the chat entities shared by the store, the realtime core
// and the HTTP layer.
package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups of records that do not exist.
var ErrNotFound = errors.New("record not found")

// Message kinds accepted by send_message.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// Identity is the authenticated owner of a connection or request.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// User is a registered account as exposed over the API.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Chat is a conversation between two or more participants.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	IsGroup       bool      `json:"isGroup"`
	Participants  []User    `json:"participants"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    Identity  `json:"sender"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	FileURL   string    `json:"fileUrl,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	FileSize  int64     `json:"fileSize,omitempty"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage carries the fields needed to persist a message.
type NewMessage struct {
	ChatID   string
	Sender   Identity
	Content  string
	Type     string
	FileURL  string
	FileName string
	FileSize int64
	ReplyTo  string
}
