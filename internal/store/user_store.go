package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	if err := u.db.WithContext(ctx).Create(usr).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail matches case-insensitively; the email column is citext but the
// lowercase normalization keeps lookups consistent with non-citext deployments.
func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "lower(email) = ?", strings.ToLower(email)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByRecoveryEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "lower(recovery_email) = ?", strings.ToLower(email)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) SetVerified(ctx context.Context, userID uuid.UUID) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_verified": true, "updated_at": time.Now().UTC()}).Error
}

func (u *UserStore) SetPrimaryEmail(ctx context.Context, userID uuid.UUID, email string) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"email": email, "is_verified": true, "updated_at": time.Now().UTC()}).Error
}

func (u *UserStore) SetRecoveryEmail(ctx context.Context, userID uuid.UUID, email *string) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"recovery_email": email, "updated_at": time.Now().UTC()}).Error
}

func (u *UserStore) SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool, method string) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_factor_enabled": enabled,
			"two_factor_method":  method,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (u *UserStore) SetDisabled(ctx context.Context, userID uuid.UUID, disabled bool) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_disabled": disabled, "updated_at": time.Now().UTC()}).Error
}
