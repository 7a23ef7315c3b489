package domain

import "time"

type User struct {
	ID              UserID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email           string    `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	RecoveryEmail   *string   `gorm:"type:citext;index" db:"recovery_email" json:"recoveryEmail,omitempty"`
	IsVerified      bool      `gorm:"not null;default:false" db:"is_verified" json:"isVerified"`
	TwoFactorEnabled bool     `gorm:"not null;default:false" db:"two_factor_enabled" json:"twoFactorEnabled"`
	// TwoFactorMethod selects the second-factor variant for this account:
	// "totp" or "email". Empty while 2FA is disabled.
	TwoFactorMethod string    `gorm:"type:text;not null;default:''" db:"two_factor_method" json:"twoFactorMethod,omitempty"`
	Roles           []string  `gorm:"serializer:json;type:jsonb;not null;default:'[\"user\"]'" db:"roles" json:"roles"`
	IsDisabled      bool      `gorm:"not null;default:false" db:"is_disabled" json:"isDisabled"`
	CreatedAt       time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }
