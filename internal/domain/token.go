package domain

import "time"

// TokenPurpose tags a OneTimeToken with the flow that issued it. Consuming a
// token checks the purpose, so a verification token can never reset a password.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken is a single-use, hashed, purpose-tagged token. A token is valid
// iff UsedAt is nil and now < ExpiresAt. Re-issuing a token for the same
// (user, purpose) invalidates all prior ones.
type OneTimeToken struct {
	ID        TokenID      `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID       `gorm:"type:uuid;index:ix_ott_user_purpose" db:"user_id"`
	Purpose   TokenPurpose `gorm:"type:text;not null;index:ix_ott_user_purpose" db:"purpose"`
	TokenHash []byte       `gorm:"type:bytea;not null;uniqueIndex:ux_ott_hash" db:"token_hash"`
	ExpiresAt time.Time    `gorm:"not null" db:"expires_at"`
	UsedAt    *time.Time   `db:"used_at"`
	CreatedAt time.Time    `gorm:"not null" db:"created_at"`
}

func (OneTimeToken) TableName() string { return "one_time_tokens" }

func (t *OneTimeToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
