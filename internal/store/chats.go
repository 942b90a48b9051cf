package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// FindChatsForUser returns the ids of every chat userID participates in.
func (s *Store) FindChatsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&ChatParticipant{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find chats for user: %w", err)
	}
	return ids, nil
}

// IsParticipant reports whether userID takes part in chatID.
func (s *Store) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

// GetChat retrieves a chat with its participants.
func (s *Store) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat Chat
	if err := s.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error; err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}
	chats, err := s.withParticipants(ctx, []Chat{chat})
	if err != nil {
		return nil, err
	}
	return &chats[0], nil
}

// ListChats returns the chats of userID, most recently active first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	var chats []Chat
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_participants ON chat_participants.chat_id = chats.id").
		Where("chat_participants.user_id = ?", userID).
		Order("chats.updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return s.withParticipants(ctx, chats)
}

// CreateChat creates a chat between creatorID and participantIDs. A chat
// with exactly two participants and no name is a direct chat; when one
// already exists for the pair it is returned with created set to false.
func (s *Store) CreateChat(ctx context.Context, creatorID string, participantIDs []string, name string) (chat *domain.Chat, created bool, err error) {
	members := uniqueMembers(creatorID, participantIDs)
	if len(members) < 2 {
		return nil, false, ErrInvalidParticipants
	}
	isGroup := len(members) > 2 || name != ""

	var chatID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var known int64
		if err := tx.Model(&User{}).Where("id IN ?", members).Count(&known).Error; err != nil {
			return fmt.Errorf("failed to check participants: %w", err)
		}
		if int(known) != len(members) {
			return ErrInvalidParticipants
		}

		if !isGroup {
			existing, err := findDirectChat(tx, members[0], members[1])
			if err != nil {
				return err
			}
			if existing != "" {
				chatID = existing
				return nil
			}
		}

		now := time.Now()
		record := Chat{ID: uuid.NewString(), Name: name, IsGroup: isGroup, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create chat: %w", err)
		}
		links := make([]ChatParticipant, 0, len(members))
		for _, id := range members {
			links = append(links, ChatParticipant{ChatID: record.ID, UserID: id, JoinedAt: now})
		}
		if err := tx.Create(&links).Error; err != nil {
			return fmt.Errorf("failed to add participants: %w", err)
		}
		chatID = record.ID
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	chat, err = s.GetChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}

// UpdateLastMessage points the chat preview at messageID and bumps the
// chat's activity time.
func (s *Store) UpdateLastMessage(ctx context.Context, chatID, messageID string) error {
	result := s.db.WithContext(ctx).Model(&Chat{}).Where("id = ?", chatID).Updates(map[string]any{
		"last_message_id": messageID,
		"updated_at":      time.Now(),
	})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func findDirectChat(tx *gorm.DB, userA, userB string) (string, error) {
	var ids []string
	err := tx.Model(&Chat{}).
		Joins("JOIN chat_participants a ON a.chat_id = chats.id AND a.user_id = ?", userA).
		Joins("JOIN chat_participants b ON b.chat_id = chats.id AND b.user_id = ?", userB).
		Where("chats.is_group = ?", false).
		Limit(1).
		Pluck("chats.id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("failed to look up direct chat: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

type participantRow struct {
	User   `gorm:"embedded"`
	ChatID string
}

func (s *Store) withParticipants(ctx context.Context, chats []Chat) ([]domain.Chat, error) {
	result := make([]domain.Chat, 0, len(chats))
	if len(chats) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}

	var rows []participantRow
	err := s.db.WithContext(ctx).Model(&User{}).
		Select("users.*, chat_participants.chat_id AS chat_id").
		Joins("JOIN chat_participants ON chat_participants.user_id = users.id").
		Where("chat_participants.chat_id IN ?", ids).
		Order("users.username").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	byChat := make(map[string][]User, len(chats))
	for _, row := range rows {
		byChat[row.ChatID] = append(byChat[row.ChatID], row.User)
	}
	for i := range chats {
		result = append(result, chats[i].toDomain(byChat[chats[i].ID]))
	}
	return result, nil
}

func uniqueMembers(creatorID string, participantIDs []string) []string {
	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, id := range participantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	return members
}
