package impl

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

const emailCodeDigits = 6

// TwoFactorEmailImpl mails a short-lived numeric code at every login. The
// pending code lives only in redis, hashed, with an attempt cap.
type TwoFactorEmailImpl struct {
	Users      twoFactorUserStore
	Challenges challengeStore
	Sec        emailCodeSecurity
	Email      service.EmailService
	TService   service.TokenService
	Notifier   service.Notifier
}

type challengeStore interface {
	Save(ctx context.Context, userID uuid.UUID, codeHash []byte) error
	Verify(ctx context.Context, userID uuid.UUID, codeHash []byte) (bool, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type emailCodeSecurity interface {
	NewNumericCode(digits int) (string, error)
	HashToken(token string) []byte
}

func NewTwoFactorEmail(st *store.Store, sec *security.Service, challenges *cache.ChallengeStore, email service.EmailService, ts service.TokenService, n service.Notifier) *TwoFactorEmailImpl {
	return &TwoFactorEmailImpl{
		Users:      st.Users(),
		Challenges: challenges,
		Sec:        sec,
		Email:      email,
		TService:   ts,
		Notifier:   n,
	}
}

var _ service.TwoFactorService = (*TwoFactorEmailImpl)(nil)

func (t *TwoFactorEmailImpl) Method() string { return service.TwoFactorEmail }

// Setup has nothing to provision; possession of the inbox is proven by the
// Enable code.
func (t *TwoFactorEmailImpl) Setup(ctx context.Context, user *domain.User) (*dto.TwoFactorSetupResponse, error) {
	if user.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorEnabled
	}
	if err := t.IssueChallenge(ctx, user); err != nil {
		return nil, err
	}
	return &dto.TwoFactorSetupResponse{Method: service.TwoFactorEmail}, nil
}

func (t *TwoFactorEmailImpl) Enable(ctx context.Context, user *domain.User, code string) error {
	if user.TwoFactorEnabled {
		return domain.ErrTwoFactorEnabled
	}
	if err := t.verifyChallenge(ctx, user.ID, code); err != nil {
		return err
	}
	if err := t.Users.SetTwoFactor(ctx, user.ID, true, service.TwoFactorEmail); err != nil {
		return err
	}
	slog.Info("two-factor enabled", "user_id", user.ID, "method", service.TwoFactorEmail)
	return nil
}

// Disable re-proves with a freshly issued code, then turns the factor off
// and forces re-login everywhere.
func (t *TwoFactorEmailImpl) Disable(ctx context.Context, user *domain.User, proof string) error {
	if !user.TwoFactorEnabled {
		return domain.ErrTwoFactorDisabled
	}
	if err := t.verifyChallenge(ctx, user.ID, proof); err != nil {
		return err
	}
	if err := t.Users.SetTwoFactor(ctx, user.ID, false, ""); err != nil {
		return err
	}
	if _, err := t.TService.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	t.Notifier.ForceLogout(user.ID, "two_factor_disabled", "Two-factor authentication was disabled. Please sign in again.")
	slog.Info("two-factor disabled", "user_id", user.ID, "method", service.TwoFactorEmail)
	return nil
}

// IssueChallenge mints a code, stores its hash and mails the plaintext.
func (t *TwoFactorEmailImpl) IssueChallenge(ctx context.Context, user *domain.User) error {
	code, err := t.Sec.NewNumericCode(emailCodeDigits)
	if err != nil {
		return err
	}
	if err := t.Challenges.Save(ctx, user.ID, t.Sec.HashToken(code)); err != nil {
		return err
	}
	return t.Email.Send(ctx, user.Email, service.EmailTwoFactorCode, map[string]string{
		"code": code,
	})
}

func (t *TwoFactorEmailImpl) Validate(ctx context.Context, user *domain.User, code string) (dto.TwoFactorValidation, error) {
	if err := t.verifyChallenge(ctx, user.ID, code); err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			return dto.TwoFactorValidation{}, nil
		}
		return dto.TwoFactorValidation{}, err
	}
	return dto.TwoFactorValidation{IsValid: true}, nil
}

func (t *TwoFactorEmailImpl) verifyChallenge(ctx context.Context, userID uuid.UUID, code string) error {
	ok, err := t.Challenges.Verify(ctx, userID, t.Sec.HashToken(code))
	switch {
	case errors.Is(err, cache.ErrChallengeNotFound):
		return domain.ErrInvalidCode
	case errors.Is(err, cache.ErrChallengeExceeded):
		return domain.ErrRateLimited
	case err != nil:
		return err
	case !ok:
		return domain.ErrInvalidCode
	}
	return nil
}
