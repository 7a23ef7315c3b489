package impl

import (
	"context"
	"log/slog"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

const backupCodeCount = 10
const backupCodeLength = 10

// TwoFactorTOTPImpl is the authenticator-app second factor. The shared
// secret is AES-GCM encrypted at rest; ten single-use backup codes (hashes
// only) are minted at setup and tried before the TOTP window.
type TwoFactorTOTPImpl struct {
	MFA      mfaStore
	Users    twoFactorUserStore
	Creds    credentialStore
	Sec      totpSecurity
	TOTP     *security.TOTP
	TService service.TokenService
	Notifier service.Notifier
}

type mfaStore interface {
	UpsertSecret(ctx context.Context, sec *domain.TwoFactorSecret) error
	GetSecret(ctx context.Context, userID uuid.UUID) (*domain.TwoFactorSecret, error)
	MarkSecretVerified(ctx context.Context, userID uuid.UUID) error
	DeleteSecret(ctx context.Context, userID uuid.UUID) error
	ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, hashes [][]byte) error
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, hash []byte) (bool, error)
	DeleteBackupCodes(ctx context.Context, userID uuid.UUID) error
}

type twoFactorUserStore interface {
	SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool, method string) error
}

type totpSecurity interface {
	NewTOTPSecret() ([]byte, string, error)
	NewBackupCodes(n, length int) ([]string, error)
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
	HashToken(token string) []byte
	VerifyPassword(password string, cred security.Credential) (rehashNeeded bool, ok bool)
}

func NewTwoFactorTOTP(st *store.Store, sec *security.Service, issuer string, ts service.TokenService, n service.Notifier) *TwoFactorTOTPImpl {
	return &TwoFactorTOTPImpl{
		MFA:      st.MFA(),
		Users:    st.Users(),
		Creds:    st.Credentials(),
		Sec:      sec,
		TOTP:     security.NewTOTP(issuer),
		TService: ts,
		Notifier: n,
	}
}

var _ service.TwoFactorService = (*TwoFactorTOTPImpl)(nil)

func (t *TwoFactorTOTPImpl) Method() string { return service.TwoFactorTOTP }

// Setup mints a fresh secret and backup codes but leaves the factor off.
// Calling Setup again before Enable simply replaces the pending secret.
func (t *TwoFactorTOTPImpl) Setup(ctx context.Context, user *domain.User) (*dto.TwoFactorSetupResponse, error) {
	if user.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorEnabled
	}

	_, secretBase32, err := t.Sec.NewTOTPSecret()
	if err != nil {
		return nil, err
	}
	encrypted, err := t.Sec.Encrypt([]byte(secretBase32))
	if err != nil {
		return nil, err
	}
	if err := t.MFA.UpsertSecret(ctx, &domain.TwoFactorSecret{
		UserID: user.ID,
		Secret: encrypted,
	}); err != nil {
		return nil, err
	}

	codes, err := t.Sec.NewBackupCodes(backupCodeCount, backupCodeLength)
	if err != nil {
		return nil, err
	}
	hashes := make([][]byte, len(codes))
	for i, c := range codes {
		hashes[i] = t.Sec.HashToken(c)
	}
	if err := t.MFA.ReplaceBackupCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	// The plaintext codes exist only in this response.
	return &dto.TwoFactorSetupResponse{
		Method:       service.TwoFactorTOTP,
		SecretBase32: secretBase32,
		OtpauthURI:   t.TOTP.ProvisionURI(secretBase32, user.Email),
		BackupCodes:  codes,
	}, nil
}

// Enable turns the factor on once the user proves possession of the secret.
func (t *TwoFactorTOTPImpl) Enable(ctx context.Context, user *domain.User, code string) error {
	if user.TwoFactorEnabled {
		return domain.ErrTwoFactorEnabled
	}
	secretBase32, err := t.loadSecret(ctx, user.ID)
	if err != nil {
		return err
	}
	ok, err := t.TOTP.Verify(secretBase32, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCode
	}
	if err := t.MFA.MarkSecretVerified(ctx, user.ID); err != nil {
		return err
	}
	if err := t.Users.SetTwoFactor(ctx, user.ID, true, service.TwoFactorTOTP); err != nil {
		return err
	}
	slog.Info("two-factor enabled", "user_id", user.ID, "method", service.TwoFactorTOTP)
	return nil
}

// Disable re-proves with the current password, then removes the factor and
// forces re-login everywhere.
func (t *TwoFactorTOTPImpl) Disable(ctx context.Context, user *domain.User, proof string) error {
	if !user.TwoFactorEnabled {
		return domain.ErrTwoFactorDisabled
	}
	cred, err := t.Creds.GetPasswordByUserID(ctx, user.ID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if _, ok := t.Sec.VerifyPassword(proof, cred); !ok {
		return domain.ErrInvalidCredentials
	}

	if err := t.MFA.DeleteSecret(ctx, user.ID); err != nil {
		return err
	}
	if err := t.MFA.DeleteBackupCodes(ctx, user.ID); err != nil {
		return err
	}
	if err := t.Users.SetTwoFactor(ctx, user.ID, false, ""); err != nil {
		return err
	}

	if _, err := t.TService.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	t.Notifier.ForceLogout(user.ID, "two_factor_disabled", "Two-factor authentication was disabled. Please sign in again.")
	slog.Info("two-factor disabled", "user_id", user.ID, "method", service.TwoFactorTOTP)
	return nil
}

// IssueChallenge is a no-op: the authenticator app already has the counter.
func (t *TwoFactorTOTPImpl) IssueChallenge(ctx context.Context, user *domain.User) error {
	return nil
}

// Validate tries backup codes before the TOTP window so a code typed from
// the printed sheet works even when it happens to be six digits.
func (t *TwoFactorTOTPImpl) Validate(ctx context.Context, user *domain.User, code string) (dto.TwoFactorValidation, error) {
	consumed, err := t.MFA.ConsumeBackupCode(ctx, user.ID, t.Sec.HashToken(code))
	if err != nil {
		return dto.TwoFactorValidation{}, err
	}
	if consumed {
		return dto.TwoFactorValidation{IsValid: true, IsBackupCode: true}, nil
	}

	secretBase32, err := t.loadSecret(ctx, user.ID)
	if err != nil {
		return dto.TwoFactorValidation{}, err
	}
	ok, err := t.TOTP.Verify(secretBase32, code, time.Now())
	if err != nil {
		return dto.TwoFactorValidation{}, err
	}
	return dto.TwoFactorValidation{IsValid: ok}, nil
}

func (t *TwoFactorTOTPImpl) loadSecret(ctx context.Context, userID uuid.UUID) (string, error) {
	sec, err := t.MFA.GetSecret(ctx, userID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return "", domain.ErrTwoFactorDisabled
		}
		return "", err
	}
	plain, err := t.Sec.Decrypt(sec.Secret)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
