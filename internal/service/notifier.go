package service

import (
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
)

// Notifier pushes real-time events to connected clients. Implemented by the
// websocket hub; every call is fire-and-forget from the caller's perspective.
type Notifier interface {
	ForceLogout(userID domain.UserID, reason, message string)
	GlobalLogout(reason, message string)
	EmailVerified(userID domain.UserID, email string, tokens *dto.TokenResponse)
	LoginSuccess(userID domain.UserID, email string)
	// PasswordResetDone reaches the anonymous reset room for the email, so a
	// tab that requested the reset learns it completed in another tab.
	PasswordResetDone(email string)
}

// NoopNotifier satisfies Notifier when the realtime layer is disabled.
type NoopNotifier struct{}

func (NoopNotifier) ForceLogout(domain.UserID, string, string)               {}
func (NoopNotifier) GlobalLogout(string, string)                             {}
func (NoopNotifier) EmailVerified(domain.UserID, string, *dto.TokenResponse) {}
func (NoopNotifier) LoginSuccess(domain.UserID, string)                      {}
func (NoopNotifier) PasswordResetDone(string)                                {}
