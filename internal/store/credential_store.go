package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CredentialStore struct{ db *gorm.DB }

func (s *Store) Credentials() *CredentialStore { return &CredentialStore{s.DB} }

func (cs *CredentialStore) UpsertPassword(ctx context.Context, c *domain.PasswordCredential) error {
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	// Requires a unique index on password_credentials.user_id (see domain tag).
	return cs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"algo", "hash", "salt", "params_json", "password_ver", "updated_at"}),
	}).Create(c).Error
}

func (cs *CredentialStore) GetPasswordByUserID(ctx context.Context, userID uuid.UUID) (*domain.PasswordCredential, error) {
	var out domain.PasswordCredential
	if err := cs.db.WithContext(ctx).First(&out, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &out, nil
}
