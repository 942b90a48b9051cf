package store

import (
	"time"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// User is a registered account.
type User struct {
	ID           string     `gorm:"primarykey;size:36"`
	Username     string     `gorm:"size:50;not null;uniqueIndex"`
	PasswordHash string     `gorm:"not null"`
	Online       bool       `gorm:"not null;default:false"`
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

func (u *User) toDomain() domain.User {
	return domain.User{
		ID:        u.ID,
		Username:  u.Username,
		Online:    u.Online,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}

// Chat is a direct or group conversation.
type Chat struct {
	ID            string `gorm:"primarykey;size:36"`
	Name          string `gorm:"size:100"`
	IsGroup       bool   `gorm:"not null;default:false"`
	LastMessageID string `gorm:"size:36"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

// TableName returns the table name for Chat model.
func (Chat) TableName() string {
	return "chats"
}

func (c *Chat) toDomain(members []User) domain.Chat {
	participants := make([]domain.User, 0, len(members))
	for i := range members {
		participants = append(participants, members[i].toDomain())
	}
	return domain.Chat{
		ID:            c.ID,
		Name:          c.Name,
		IsGroup:       c.IsGroup,
		Participants:  participants,
		LastMessageID: c.LastMessageID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// ChatParticipant links a user to a chat.
type ChatParticipant struct {
	ChatID   string `gorm:"primarykey;size:36"`
	UserID   string `gorm:"primarykey;size:36;index"`
	JoinedAt time.Time
}

// TableName returns the table name for ChatParticipant model.
func (ChatParticipant) TableName() string {
	return "chat_participants"
}

// Message is a persisted chat message.
type Message struct {
	ID        string `gorm:"primarykey;size:36"`
	ChatID    string `gorm:"size:36;not null;index:idx_messages_chat_created,priority:1"`
	SenderID  string `gorm:"size:36;not null"`
	Sender    User   `gorm:"foreignKey:SenderID"`
	Content   string `gorm:"size:4000"`
	Type      string `gorm:"size:10;not null;default:text"`
	FileURL   string `gorm:"size:500"`
	FileName  string `gorm:"size:255"`
	FileSize  int64
	ReplyTo   string    `gorm:"size:36"`
	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

func (m *Message) toDomain() domain.Message {
	return domain.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    domain.Identity{UserID: m.SenderID, Username: m.Sender.Username},
		Content:   m.Content,
		Type:      m.Type,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		ReplyTo:   m.ReplyTo,
		CreatedAt: m.CreatedAt,
	}
}

// MessageRead records that a user has read a message.
type MessageRead struct {
	MessageID string `gorm:"primarykey;size:36"`
	UserID    string `gorm:"primarykey;size:36"`
	ReadAt    time.Time
}

// TableName returns the table name for MessageRead model.
func (MessageRead) TableName() string {
	return "message_reads"
}

// PresenceSession counts the open connections of a user on one instance.
type PresenceSession struct {
	UserID      string `gorm:"primarykey;size:36"`
	InstanceID  string `gorm:"primarykey;size:64;index"`
	Connections int    `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

// TableName returns the table name for PresenceSession model.
func (PresenceSession) TableName() string {
	return "presence_sessions"
}
