package store

import (
	"context"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TokenStore struct{ db *gorm.DB }

func (s *Store) Tokens() *TokenStore { return &TokenStore{s.DB} }

// Issue stores a fresh one-time token and expires every prior unused token of
// the same purpose for the user. Old tokens are garbage-collected lazily this
// way; there is no background sweeper.
func (ts *TokenStore) Issue(ctx context.Context, t *domain.OneTimeToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	now := time.Now().UTC()
	if err := ts.db.WithContext(ctx).Model(&domain.OneTimeToken{}).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL", t.UserID, t.Purpose).
		Update("used_at", now).Error; err != nil {
		return err
	}
	return ts.db.WithContext(ctx).Create(t).Error
}

// Consume atomically marks the token matching (hash, purpose) as used.
// The conditional update is the single-use guard: two concurrent consumers
// race on used_at IS NULL and exactly one wins.
func (ts *TokenStore) Consume(ctx context.Context, hash []byte, purpose domain.TokenPurpose) (*domain.OneTimeToken, error) {
	var t domain.OneTimeToken
	if err := ts.db.WithContext(ctx).
		First(&t, "token_hash = ? AND purpose = ?", hash, purpose).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !t.Valid(now) {
		return nil, domain.ErrTokenInvalid
	}

	res := ts.db.WithContext(ctx).Model(&domain.OneTimeToken{}).
		Where("id = ? AND used_at IS NULL AND expires_at > ?", t.ID, now).
		Update("used_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, domain.ErrTokenInvalid
	}
	t.UsedAt = &now
	return &t, nil
}

func (ts *TokenStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return ts.db.WithContext(ctx).Delete(&domain.OneTimeToken{}, "user_id = ?", userID).Error
}
