package domain

import "time"

// TwoFactorSecret holds one encrypted TOTP seed per user. The seed is
// AES-GCM encrypted at rest; Verified flips once the user has proven
// possession with a live code.
type TwoFactorSecret struct {
	UserID    UserID    `gorm:"type:uuid;primaryKey" db:"user_id"`
	Secret    []byte    `gorm:"type:bytea;not null" db:"secret"`
	Verified  bool      `gorm:"not null;default:false" db:"verified"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
	UpdatedAt time.Time `gorm:"not null" db:"updated_at"`
}

func (TwoFactorSecret) TableName() string { return "two_factor_secrets" }

// BackupCode is one of ten single-use recovery codes issued at 2FA setup.
// Only the SHA-256 hash is stored.
type BackupCode struct {
	ID        TokenID    `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID     `gorm:"type:uuid;index" db:"user_id"`
	CodeHash  []byte     `gorm:"type:bytea;not null" db:"code_hash"`
	IsUsed    bool       `gorm:"not null;default:false" db:"is_used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `gorm:"not null" db:"created_at"`
}

func (BackupCode) TableName() string { return "backup_codes" }
