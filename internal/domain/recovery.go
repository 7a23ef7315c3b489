package domain

import "time"

// RecoveryStaging is a pending account-recovery request, at most one per user.
// NewEmail stays nil until the recovery token has been confirmed; the swap to
// the new primary email happens only at completion.
type RecoveryStaging struct {
	ID        TokenID   `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID    `gorm:"type:uuid;uniqueIndex:ux_recovery_user" db:"user_id"`
	NewEmail  *string   `gorm:"type:citext" db:"new_email"`
	TokenHash []byte    `gorm:"type:bytea;not null" db:"token_hash"`
	ExpiresAt time.Time `gorm:"not null" db:"expires_at"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
}

func (RecoveryStaging) TableName() string { return "recovery_stagings" }
