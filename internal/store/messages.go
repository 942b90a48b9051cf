package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// Message history page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// CreateMessage persists a message and returns it with its sender resolved.
func (s *Store) CreateMessage(ctx context.Context, draft domain.NewMessage) (*domain.Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		ChatID:    draft.ChatID,
		SenderID:  draft.Sender.UserID,
		Content:   draft.Content,
		Type:      draft.Type,
		FileURL:   draft.FileURL,
		FileName:  draft.FileName,
		FileSize:  draft.FileSize,
		ReplyTo:   draft.ReplyTo,
		CreatedAt: time.Now(),
	}
	if msg.Type == "" {
		msg.Type = domain.MessageText
	}
	if err := s.db.WithContext(ctx).Omit("Sender").Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	result := msg.toDomain()
	result.Sender.Username = draft.Sender.Username
	return &result, nil
}

// ListMessages returns up to limit messages of chatID, oldest first. When
// before names a message, only messages ordered before it are returned;
// messages sharing a timestamp are ordered by id.
func (s *Store) ListMessages(ctx context.Context, chatID string, limit int, before string) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := s.db.WithContext(ctx).Preload("Sender").Where("chat_id = ?", chatID)
	if before != "" {
		var cursor Message
		if err := s.db.WithContext(ctx).Select("id", "created_at").First(&cursor, "id = ? AND chat_id = ?", before, chatID).Error; err != nil {
			if notFound(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to find cursor message: %w", err)
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var messages []Message
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	result := make([]domain.Message, len(messages))
	for i := range messages {
		result[len(messages)-1-i] = messages[i].toDomain()
	}
	return result, nil
}

// MarkRead records read receipts for userID on messages of chatID written by
// other users and returns the ids that were not already read. An empty
// messageIDs marks every unread message of the chat.
func (s *Store) MarkRead(ctx context.Context, chatID, userID string, messageIDs []string) ([]string, error) {
	var marked []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&Message{}).
			Where("chat_id = ? AND sender_id <> ?", chatID, userID).
			Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", userID)
		if len(messageIDs) > 0 {
			query = query.Where("id IN ?", messageIDs)
		}
		if err := query.Order("created_at").Pluck("id", &marked).Error; err != nil {
			return fmt.Errorf("failed to find unread messages: %w", err)
		}
		if len(marked) == 0 {
			return nil
		}

		now := time.Now()
		receipts := make([]MessageRead, 0, len(marked))
		for _, id := range marked {
			receipts = append(receipts, MessageRead{MessageID: id, UserID: userID, ReadAt: now})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error; err != nil {
			return fmt.Errorf("failed to record read receipts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}
