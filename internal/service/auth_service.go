package service

import (
	"context"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.RegisterResponse, error)
	VerifyEmail(ctx context.Context, token string, ip, ua string) (*dto.TokenResponse, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResponse, error)
	LoginTwoFactor(ctx context.Context, r dto.TwoFactorLoginRequest, ip, ua string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, r dto.ChangePasswordRequest) error
}
