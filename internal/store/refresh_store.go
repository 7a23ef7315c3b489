package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefreshStore struct{ db *gorm.DB }

func (s *Store) RefreshSessions() *RefreshStore { return &RefreshStore{s.DB} }

func (rs *RefreshStore) Create(ctx context.Context, r *domain.RefreshSession) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.FamilyID == uuid.Nil {
		r.FamilyID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.IsActive = true
	return rs.db.WithContext(ctx).Create(r).Error
}

func (rs *RefreshStore) GetByHash(ctx context.Context, hash []byte) (*domain.RefreshSession, error) {
	var r domain.RefreshSession
	if err := rs.db.WithContext(ctx).First(&r, "secret_hash = ?", hash).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Rotate deactivates the active, unexpired generation matching hash and
// inserts the next generation under the same family, all inside one
// transaction. The conditional update is the single-use guard: when two
// requests present the same refresh token, only one UPDATE matches and the
// other caller gets ErrRecordNotFound.
func (rs *RefreshStore) Rotate(ctx context.Context, hash []byte, nextHash []byte, expiresAt time.Time) (*domain.RefreshSession, error) {
	now := time.Now().UTC()
	var next *domain.RefreshSession

	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur domain.RefreshSession
		if err := tx.First(&cur, "secret_hash = ?", hash).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrRecordNotFound
			}
			return err
		}

		res := tx.Model(&domain.RefreshSession{}).
			Where("id = ? AND is_active = true AND expires_at > ?", cur.ID, now).
			Updates(map[string]interface{}{"is_active": false, "rotated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrRecordNotFound
		}

		next = &domain.RefreshSession{
			ID:         uuid.New(),
			FamilyID:   cur.FamilyID,
			UserID:     cur.UserID,
			SecretHash: nextHash,
			IsActive:   true,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
		return tx.Create(next).Error
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// DeactivateFamily revokes every generation of one token family. Used both
// for ordinary logout and as the theft response when a stale generation's
// hash is presented.
func (rs *RefreshStore) DeactivateFamily(ctx context.Context, familyID uuid.UUID) (int64, error) {
	res := rs.db.WithContext(ctx).Model(&domain.RefreshSession{}).
		Where("family_id = ? AND is_active = true", familyID).
		Updates(map[string]interface{}{"is_active": false, "rotated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (rs *RefreshStore) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := rs.db.WithContext(ctx).Model(&domain.RefreshSession{}).
		Where("user_id = ? AND is_active = true", userID).
		Updates(map[string]interface{}{"is_active": false, "rotated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
