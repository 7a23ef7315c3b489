package service

import "context"

// Email template keys.
const (
	EmailVerification    = "verification"
	EmailPasswordReset   = "password_reset"
	EmailPasswordChanged = "password_changed"
	EmailTwoFactorCode   = "two_factor_code"
	EmailRecovery        = "account_recovery"
)

// EmailService is the outbound mail collaborator: template-keyed send with a
// parameter map. Delivery is best-effort; callers on security-relevant paths
// log failures and continue.
type EmailService interface {
	Send(ctx context.Context, to, template string, params map[string]string) error
}
