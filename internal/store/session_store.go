package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.UserSession) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.LastActiveAt.IsZero() {
		sess.LastActiveAt = sess.CreatedAt
	}
	sess.IsCurrent = true
	return ss.db.WithContext(ctx).Create(sess).Error
}

func (ss *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error) {
	var sess domain.UserSession
	if err := ss.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (ss *SessionStore) GetByFamily(ctx context.Context, userID, familyID uuid.UUID) (*domain.UserSession, error) {
	var sess domain.UserSession
	if err := ss.db.WithContext(ctx).
		First(&sess, "user_id = ? AND refresh_family_id = ?", userID, familyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (ss *SessionStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserSession, error) {
	var sessions []*domain.UserSession
	if err := ss.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("last_active_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (ss *SessionStore) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).Model(&domain.UserSession{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error
}

func (ss *SessionStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).Model(&domain.UserSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"revoked_at": at, "is_current": false}).Error
}

func (ss *SessionStore) RevokeByFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).Model(&domain.UserSession{}).
		Where("refresh_family_id = ?", familyID).
		Updates(map[string]interface{}{"revoked_at": at, "is_current": false}).Error
}

func (ss *SessionStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tx := ss.db.WithContext(ctx).Model(&domain.UserSession{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{"revoked_at": at, "is_current": false})
	return tx.RowsAffected, tx.Error
}
