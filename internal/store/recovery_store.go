package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecoveryStore struct{ db *gorm.DB }

func (s *Store) Recovery() *RecoveryStore { return &RecoveryStore{s.DB} }

// Replace drops any prior staging row for the user before inserting the new
// one. Exactly one pending recovery exists per user.
func (rs *RecoveryStore) Replace(ctx context.Context, staging *domain.RecoveryStaging) error {
	if staging.ID == uuid.Nil {
		staging.ID = uuid.New()
	}
	if staging.CreatedAt.IsZero() {
		staging.CreatedAt = time.Now().UTC()
	}
	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.RecoveryStaging{}, "user_id = ?", staging.UserID).Error; err != nil {
			return err
		}
		return tx.Create(staging).Error
	})
}

func (rs *RecoveryStore) GetByTokenHash(ctx context.Context, hash []byte) (*domain.RecoveryStaging, error) {
	var staging domain.RecoveryStaging
	if err := rs.db.WithContext(ctx).First(&staging, "token_hash = ?", hash).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &staging, nil
}

func (rs *RecoveryStore) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.RecoveryStaging, error) {
	var staging domain.RecoveryStaging
	if err := rs.db.WithContext(ctx).First(&staging, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &staging, nil
}

func (rs *RecoveryStore) SetNewEmail(ctx context.Context, id uuid.UUID, email string) error {
	return rs.db.WithContext(ctx).Model(&domain.RecoveryStaging{}).
		Where("id = ?", id).
		Update("new_email", email).Error
}

func (rs *RecoveryStore) Delete(ctx context.Context, userID uuid.UUID) error {
	return rs.db.WithContext(ctx).Delete(&domain.RecoveryStaging{}, "user_id = ?", userID).Error
}
