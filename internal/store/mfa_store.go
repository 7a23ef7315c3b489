package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MFAStore struct{ db *gorm.DB }

func (s *Store) MFA() *MFAStore { return &MFAStore{s.DB} }

func (ms *MFAStore) UpsertSecret(ctx context.Context, sec *domain.TwoFactorSecret) error {
	now := time.Now().UTC()
	if sec.CreatedAt.IsZero() {
		sec.CreatedAt = now
	}
	sec.UpdatedAt = now
	return ms.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "verified", "updated_at"}),
	}).Create(sec).Error
}

func (ms *MFAStore) GetSecret(ctx context.Context, userID uuid.UUID) (*domain.TwoFactorSecret, error) {
	var sec domain.TwoFactorSecret
	if err := ms.db.WithContext(ctx).First(&sec, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sec, nil
}

func (ms *MFAStore) MarkSecretVerified(ctx context.Context, userID uuid.UUID) error {
	return ms.db.WithContext(ctx).Model(&domain.TwoFactorSecret{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"verified": true, "updated_at": time.Now().UTC()}).Error
}

func (ms *MFAStore) DeleteSecret(ctx context.Context, userID uuid.UUID) error {
	return ms.db.WithContext(ctx).Delete(&domain.TwoFactorSecret{}, "user_id = ?", userID).Error
}

// ReplaceBackupCodes deletes the previous code set and inserts the new one.
// Always called with exactly the hashes of a freshly generated set.
func (ms *MFAStore) ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, hashes [][]byte) error {
	return ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.BackupCode{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, h := range hashes {
			code := &domain.BackupCode{
				ID:        uuid.New(),
				UserID:    userID,
				CodeHash:  h,
				CreatedAt: now,
			}
			if err := tx.Create(code).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks the unused code matching hash as used. The
// conditional update makes consumption single-use under concurrency.
func (ms *MFAStore) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, hash []byte) (bool, error) {
	now := time.Now().UTC()
	res := ms.db.WithContext(ctx).Model(&domain.BackupCode{}).
		Where("user_id = ? AND code_hash = ? AND is_used = false", userID, hash).
		Updates(map[string]interface{}{"is_used": true, "used_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (ms *MFAStore) DeleteBackupCodes(ctx context.Context, userID uuid.UUID) error {
	return ms.db.WithContext(ctx).Delete(&domain.BackupCode{}, "user_id = ?", userID).Error
}
