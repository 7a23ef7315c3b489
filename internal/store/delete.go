package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeleteUserData removes a user and every owned record, and returns counts of
// affected resources captured before deletion. Refresh sessions are
// deactivated rather than deleted so replay attempts after an admin delete
// still hit a dead row instead of an absent one.
func (s *Store) DeleteUserData(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	deleted := map[string]int64{}

	err := s.WithTx(ctx, func(tx *Store) error {
		db := tx.DB.WithContext(ctx)

		count := func(label string, query *gorm.DB) error {
			var total int64
			if err := query.Count(&total).Error; err != nil {
				return err
			}
			deleted[label] = total
			return nil
		}

		if err := count("users", db.Model(&domain.User{}).Where("id = ?", userID)); err != nil {
			return err
		}
		if err := count("oneTimeTokens", db.Model(&domain.OneTimeToken{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("passwordCredentials", db.Model(&domain.PasswordCredential{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("refreshSessions", db.Model(&domain.RefreshSession{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("userSessions", db.Model(&domain.UserSession{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("twoFactorSecrets", db.Model(&domain.TwoFactorSecret{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("backupCodes", db.Model(&domain.BackupCode{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("recoveryStagings", db.Model(&domain.RecoveryStaging{}).Where("user_id = ?", userID)); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := db.Model(&domain.RefreshSession{}).
			Where("user_id = ? AND is_active = true", userID).
			Updates(map[string]interface{}{"is_active": false, "rotated_at": now}).Error; err != nil {
			return err
		}

		for _, m := range []interface{}{
			&domain.OneTimeToken{},
			&domain.PasswordCredential{},
			&domain.UserSession{},
			&domain.TwoFactorSecret{},
			&domain.BackupCode{},
			&domain.RecoveryStaging{},
		} {
			if err := db.Where("user_id = ?", userID).Delete(m).Error; err != nil {
				return err
			}
		}

		return db.Where("id = ?", userID).Delete(&domain.User{}).Error
	})

	return deleted, err
}
