package impl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

// RecoveryServiceImpl handles the lost-primary-email flow. Request mails a
// token to the recovery address; Confirm stages the new primary email and
// mails a verification token to it; the verification endpoint completes the
// swap.
type RecoveryServiceImpl struct {
	Users   recoveryUserStore
	Staging recoveryStagingStore
	Tokens  tokenStore
	Sec     recoverySecurity
	Email   service.EmailService
	Cfg     RecoveryConfig
}

type RecoveryConfig struct {
	TokenTTL        time.Duration // recovery-token lifetime, e.g. 1h
	VerificationTTL time.Duration
	AppURL          string
}

type recoveryUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByRecoveryEmail(ctx context.Context, email string) (*domain.User, error)
	SetRecoveryEmail(ctx context.Context, userID uuid.UUID, email *string) error
}

type recoveryStagingStore interface {
	Replace(ctx context.Context, staging *domain.RecoveryStaging) error
	GetByTokenHash(ctx context.Context, hash []byte) (*domain.RecoveryStaging, error)
	SetNewEmail(ctx context.Context, id uuid.UUID, email string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type recoverySecurity interface {
	NewOpaqueToken() (string, error)
	HashToken(token string) []byte
}

func NewRecoveryServiceImpl(st *store.Store, sec *security.Service, email service.EmailService, cfg RecoveryConfig) *RecoveryServiceImpl {
	return &RecoveryServiceImpl{
		Users:   st.Users(),
		Staging: st.Recovery(),
		Tokens:  st.Tokens(),
		Sec:     sec,
		Email:   email,
		Cfg:     cfg,
	}
}

var _ service.RecoveryService = (*RecoveryServiceImpl)(nil)

// Request always reports success to the caller. Whether the recovery email
// is known decides only what happens internally.
func (r *RecoveryServiceImpl) Request(ctx context.Context, recoveryEmail string) error {
	recoveryEmail = strings.ToLower(strings.TrimSpace(recoveryEmail))
	user, err := r.Users.GetByRecoveryEmail(ctx, recoveryEmail)
	if err != nil {
		return nil
	}

	token, err := r.Sec.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := r.Staging.Replace(ctx, &domain.RecoveryStaging{
		UserID:    user.ID,
		TokenHash: r.Sec.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(r.Cfg.TokenTTL),
	}); err != nil {
		return err
	}

	if err := r.Email.Send(ctx, recoveryEmail, service.EmailRecovery, map[string]string{
		"token": token,
		"link":  r.Cfg.AppURL + "/recover?token=" + token,
	}); err != nil {
		slog.Warn("recovery email send failed", "error", err)
	}
	return nil
}

// Confirm validates the recovery token and the requested new primary email,
// stages the change, and mails a verification token to the new address. The
// swap itself waits for that verification.
func (r *RecoveryServiceImpl) Confirm(ctx context.Context, req dto.RecoveryConfirmRequest) (*dto.RecoveryConfirmResponse, error) {
	staging, err := r.Staging.GetByTokenHash(ctx, r.Sec.HashToken(req.Token))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}
	if time.Now().UTC().After(staging.ExpiresAt) {
		return nil, domain.ErrTokenInvalid
	}

	newEmail := strings.ToLower(strings.TrimSpace(req.NewEmail))
	if newEmail == "" {
		return nil, ErrEmptyEmail
	}

	// The new address may equal the user's current one (idempotent
	// correction) but never someone else's.
	if owner, err := r.Users.GetByEmail(ctx, newEmail); err == nil && owner.ID != staging.UserID {
		return nil, domain.ErrDuplicateEmail
	}

	if err := r.Staging.SetNewEmail(ctx, staging.ID, newEmail); err != nil {
		return nil, err
	}

	verifyToken, err := r.Sec.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	if err := r.Tokens.Issue(ctx, &domain.OneTimeToken{
		UserID:    staging.UserID,
		Purpose:   domain.PurposeEmailVerification,
		TokenHash: r.Sec.HashToken(verifyToken),
		ExpiresAt: time.Now().UTC().Add(r.Cfg.VerificationTTL),
	}); err != nil {
		return nil, err
	}

	if err := r.Email.Send(ctx, newEmail, service.EmailVerification, map[string]string{
		"token": verifyToken,
		"link":  r.Cfg.AppURL + "/verify?token=" + verifyToken,
	}); err != nil {
		slog.Warn("verification email send failed", "error", err)
	}

	return &dto.RecoveryConfirmResponse{RequiresEmailVerification: true}, nil
}

// UpdateRecoveryEmail stores the lowercased address, or clears it when the
// caller sends an empty string. The recovery address must differ from the
// primary one, otherwise a lost mailbox loses both.
func (r *RecoveryServiceImpl) UpdateRecoveryEmail(ctx context.Context, userID uuid.UUID, recoveryEmail string) error {
	recoveryEmail = strings.ToLower(strings.TrimSpace(recoveryEmail))
	if recoveryEmail == "" {
		return r.Users.SetRecoveryEmail(ctx, userID, nil)
	}

	user, err := r.Users.GetByID(ctx, userID)
	if err != nil {
		return domain.ErrNotFound
	}
	if strings.EqualFold(user.Email, recoveryEmail) {
		return ErrRecoveryIsPrimary
	}
	return r.Users.SetRecoveryEmail(ctx, userID, &recoveryEmail)
}
