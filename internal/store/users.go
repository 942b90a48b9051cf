package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// CreateUser saves a new account with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	result := user.toDomain()
	return &result, nil
}

// FindCredentials returns the account registered as username together with
// its password hash.
func (s *Store) FindCredentials(ctx context.Context, username string) (*domain.User, string, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if notFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	result := user.toDomain()
	return &result, user.PasswordHash, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	result := user.toDomain()
	return &result, nil
}

// setUserOnline records the user's online flag. Going offline also stamps
// the last-seen time.
func setUserOnline(tx *gorm.DB, userID string, online bool, lastSeen time.Time) error {
	updates := map[string]any{"online": online}
	if !online {
		updates["last_seen"] = lastSeen
	}
	result := tx.Model(&User{}).Where("id = ?", userID).Updates(updates)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
