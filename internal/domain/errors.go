package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrUserDisabled       = errors.New("user disabled")
	ErrTokenInvalid       = errors.New("invalid or expired token")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrTwoFactorDisabled  = errors.New("two-factor authentication not enabled")
	ErrTwoFactorEnabled   = errors.New("two-factor authentication already enabled")
	ErrInvalidCode        = errors.New("invalid code")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
)
