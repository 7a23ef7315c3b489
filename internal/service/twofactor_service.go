package service

import (
	"context"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
)

// TwoFactorMethod names the second-factor variants.
const (
	TwoFactorTOTP  = "totp"
	TwoFactorEmail = "email"
)

// TwoFactorService is one second-factor variant. The TOTP variant carries
// backup codes; the email variant mails a short-lived numeric code from
// IssueChallenge. The orchestrator selects the variant recorded on the user.
type TwoFactorService interface {
	Method() string

	// Setup provisions the factor but does not enable it; the user must
	// prove possession via Enable first.
	Setup(ctx context.Context, user *domain.User) (*dto.TwoFactorSetupResponse, error)

	// Enable activates the factor after a successful proof code.
	Enable(ctx context.Context, user *domain.User, code string) error

	// Disable verifies proof (the current password for TOTP, a fresh code for
	// the email variant), tears the factor down, revokes every session and
	// broadcasts a forced logout.
	Disable(ctx context.Context, user *domain.User, proof string) error

	// IssueChallenge starts a login challenge: a no-op for TOTP, a code email
	// for the email variant.
	IssueChallenge(ctx context.Context, user *domain.User) error

	// Validate checks a login code. Backup codes are consumed on success.
	Validate(ctx context.Context, user *domain.User, code string) (dto.TwoFactorValidation, error)
}
