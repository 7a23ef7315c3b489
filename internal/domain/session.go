package domain

import "time"

// RefreshSession is one generation of a refresh-token family. At most one row
// per family is active at a time; rotation inserts the next generation and
// deactivates the previous one in the same statement window.
type RefreshSession struct {
	ID         TokenID    `gorm:"type:uuid;primaryKey" db:"id"`
	FamilyID   FamilyID   `gorm:"type:uuid;index:ix_refresh_family" db:"family_id"`
	UserID     UserID     `gorm:"type:uuid;index" db:"user_id"`
	SecretHash []byte     `gorm:"type:bytea;not null;uniqueIndex:ux_refresh_hash" db:"secret_hash"`
	IsActive   bool       `gorm:"not null;default:true" db:"is_active"`
	ExpiresAt  time.Time  `gorm:"not null" db:"expires_at"`
	RotatedAt  *time.Time `db:"rotated_at"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at"`
}

func (RefreshSession) TableName() string { return "refresh_sessions" }

// UserSession is the human-readable session record shown in the sessions UI.
// It is keyed to a refresh-token family; deleting it deactivates that family
// so a surviving access token cannot be silently refreshed.
type UserSession struct {
	ID              SessionID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID          UserID     `gorm:"type:uuid;index" db:"user_id" json:"userId"`
	RefreshFamilyID FamilyID   `gorm:"type:uuid;uniqueIndex:ux_usersessions_family" db:"refresh_family_id" json:"refreshTokenId"`
	DeviceType      string     `gorm:"type:text" db:"device_type" json:"deviceType"`
	Browser         string     `gorm:"type:text" db:"browser" json:"browser"`
	OS              string     `gorm:"type:text" db:"os" json:"os"`
	IP              string     `gorm:"type:inet" db:"ip" json:"ip"`
	Location        string     `gorm:"type:text" db:"location" json:"location"`
	IsCurrent       bool       `gorm:"not null;default:true" db:"is_current" json:"isCurrent"`
	LastActiveAt    time.Time  `gorm:"not null" db:"last_active_at" json:"lastActiveAt"`
	RevokedAt       *time.Time `db:"revoked_at" json:"-"`
	CreatedAt       time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (UserSession) TableName() string { return "user_sessions" }
