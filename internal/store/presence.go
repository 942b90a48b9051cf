package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddPresence counts one more connection of userID held by instanceID. It
// reports whether the user had no connection on any instance before, in
// which case the user is marked online.
func (s *Store) AddPresence(ctx context.Context, userID, instanceID string, at time.Time) (bool, error) {
	var first bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := PresenceSession{UserID: userID, InstanceID: instanceID, Connections: 1, UpdatedAt: at}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "instance_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"connections": gorm.Expr("connections + 1"),
				"updated_at":  at,
			}),
		}).Create(&session).Error; err != nil {
			return fmt.Errorf("failed to count connection: %w", err)
		}

		total, err := totalConnections(tx, userID)
		if err != nil {
			return err
		}
		if total != 1 {
			return nil
		}
		first = true
		return setUserOnline(tx, userID, true, at)
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

// RemovePresence counts one connection of userID fewer on instanceID. It
// reports whether that was the user's last connection on any instance, in
// which case the user is marked offline with at as the last-seen time.
func (s *Store) RemovePresence(ctx context.Context, userID, instanceID string, at time.Time) (bool, error) {
	var last bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PresenceSession{}).
			Where("user_id = ? AND instance_id = ? AND connections > 0", userID, instanceID).
			Updates(map[string]any{
				"connections": gorm.Expr("connections - 1"),
				"updated_at":  at,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to uncount connection: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("user_id = ? AND instance_id = ? AND connections <= 0", userID, instanceID).
			Delete(&PresenceSession{}).Error; err != nil {
			return fmt.Errorf("failed to drop presence session: %w", err)
		}

		total, err := totalConnections(tx, userID)
		if err != nil {
			return err
		}
		if total != 0 {
			return nil
		}
		last = true
		return setUserOnline(tx, userID, false, at)
	})
	if err != nil {
		return false, err
	}
	return last, nil
}

// ClearPresence forgets every connection counted for instanceID, such as
// those left behind by a crash, and marks users with no connection left
// elsewhere offline.
func (s *Store) ClearPresence(ctx context.Context, instanceID string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var userIDs []string
		if err := tx.Model(&PresenceSession{}).Where("instance_id = ?", instanceID).
			Pluck("user_id", &userIDs).Error; err != nil {
			return fmt.Errorf("failed to find presence sessions: %w", err)
		}
		if len(userIDs) == 0 {
			return nil
		}
		if err := tx.Where("instance_id = ?", instanceID).Delete(&PresenceSession{}).Error; err != nil {
			return fmt.Errorf("failed to clear presence sessions: %w", err)
		}

		for _, userID := range userIDs {
			total, err := totalConnections(tx, userID)
			if err != nil {
				return err
			}
			if total > 0 {
				continue
			}
			if err := setUserOnline(tx, userID, false, at); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func totalConnections(tx *gorm.DB, userID string) (int64, error) {
	var total int64
	if err := tx.Model(&PresenceSession{}).Where("user_id = ?", userID).
		Select("COALESCE(SUM(connections), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return total, nil
}
