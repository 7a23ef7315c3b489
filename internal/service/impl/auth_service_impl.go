package impl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

// AuthConfig carries the orchestrator's flow parameters.
type AuthConfig struct {
	VerificationTTL time.Duration // e.g. 30 * time.Minute
	ResetTTL        time.Duration // e.g. 30 * time.Minute
	MinPasswordLen  int
	AppURL          string // base for links embedded in emails
}

// AuthServiceImpl is the authentication orchestrator: registration,
// verification, login with brute-force lockout, the 2FA handoff, password
// reset/change, and logout. Stores are consumed through narrow interfaces so
// tests run against in-memory fakes.
type AuthServiceImpl struct {
	Store     dataStore
	Sec       securityService
	TService  service.TokenService
	Email     service.EmailService
	Notifier  service.Notifier
	Lockout   lockoutGuard
	Cache     sessionCacheCleaner
	TwoFactor map[string]service.TwoFactorService
	Cfg       AuthConfig
}

func NewAuthServiceImpl(
	st *store.Store,
	sec *security.Service,
	tokenService service.TokenService,
	email service.EmailService,
	notifier service.Notifier,
	lockout lockoutGuard,
	sessions *cache.SessionCache,
	variants []service.TwoFactorService,
	cfg AuthConfig,
) *AuthServiceImpl {
	byMethod := make(map[string]service.TwoFactorService, len(variants))
	for _, v := range variants {
		byMethod[v.Method()] = v
	}
	if cfg.MinPasswordLen == 0 {
		cfg.MinPasswordLen = 8
	}
	return &AuthServiceImpl{
		Store:     gormStoreAdapter{store: st},
		Sec:       sec,
		TService:  tokenService,
		Email:     email,
		Notifier:  notifier,
		Lockout:   lockout,
		Cache:     sessions,
		TwoFactor: byMethod,
		Cfg:       cfg,
	}
}

var _ service.AuthService = (*AuthServiceImpl)(nil)

// ====== Consumer-side store interfaces ======

type dataStore interface {
	storeTx
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Users() userStore
	Credentials() credentialStore
	Tokens() tokenStore
	Recovery() recoveryReader
	RefreshSessions() refreshReader

	// RevokeAllSessions deactivates every refresh family and session row for
	// the user within the surrounding transaction, so a credential change and
	// its mandatory revocation commit or roll back together. It returns the
	// revoked family ids for post-commit cache cleanup.
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetVerified(ctx context.Context, userID uuid.UUID) error
	SetPrimaryEmail(ctx context.Context, userID uuid.UUID, email string) error
}

type credentialStore interface {
	UpsertPassword(ctx context.Context, c *domain.PasswordCredential) error
	GetPasswordByUserID(ctx context.Context, userID uuid.UUID) (*domain.PasswordCredential, error)
}

type tokenStore interface {
	Issue(ctx context.Context, t *domain.OneTimeToken) error
	Consume(ctx context.Context, hash []byte, purpose domain.TokenPurpose) (*domain.OneTimeToken, error)
}

type recoveryReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*domain.RecoveryStaging, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type refreshReader interface {
	GetByHash(ctx context.Context, hash []byte) (*domain.RefreshSession, error)
}

type securityService interface {
	HashPassword(password string) (hash, salt, paramsJSON []byte, algo string, ver int, err error)
	VerifyPassword(password string, cred security.Credential) (rehashNeeded bool, ok bool)
	HashToken(token string) []byte
	NewOpaqueToken() (string, error)
}

type sessionCacheCleaner interface {
	Delete(ctx context.Context, userID, familyID uuid.UUID) error
}

type lockoutGuard interface {
	IsLocked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) (bool, error)
	Reset(ctx context.Context, email string) error
}

// ====== gorm adapter ======

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormStoreAdapter{store: tx})
	})
}

func (g gormStoreAdapter) Users() userStore               { return g.store.Users() }
func (g gormStoreAdapter) Credentials() credentialStore   { return g.store.Credentials() }
func (g gormStoreAdapter) Tokens() tokenStore             { return g.store.Tokens() }
func (g gormStoreAdapter) Recovery() recoveryReader       { return g.store.Recovery() }
func (g gormStoreAdapter) RefreshSessions() refreshReader { return g.store.RefreshSessions() }

func (g gormStoreAdapter) RevokeAllSessions(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	sessions, err := g.store.Sessions().ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	families := make([]uuid.UUID, 0, len(sessions))
	for _, s := range sessions {
		families = append(families, s.RefreshFamilyID)
	}
	if _, err := g.store.RefreshSessions().DeactivateAllForUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := g.store.Sessions().RevokeAllForUser(ctx, userID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return families, nil
}

// ====== Registration & verification ======

func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest, ip, ua string) (*dto.RegisterResponse, error) {
	result := "success"
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(result).Inc()
	}()

	email := strings.ToLower(strings.TrimSpace(r.Email))
	if email == "" {
		result = "failure"
		return nil, ErrEmptyEmail
	}
	if len(r.Password) < a.Cfg.MinPasswordLen {
		result = "failure"
		return nil, ErrPasswordLength
	}

	verifyToken, err := a.Sec.NewOpaqueToken()
	if err != nil {
		result = "failure"
		return nil, err
	}

	var out dto.RegisterResponse

	// User row, credential, and verification token commit together; the
	// email send stays outside so its failure cannot roll back registration.
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		now := time.Now().UTC()

		u := &domain.User{
			ID:         uuid.New(),
			Email:      email,
			IsVerified: false,
			Roles:      []string{"user"},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if r.RecoveryEmail != "" {
			rec := strings.ToLower(strings.TrimSpace(r.RecoveryEmail))
			u.RecoveryEmail = &rec
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}

		hash, salt, paramsJSON, algo, ver, err := a.Sec.HashPassword(r.Password)
		if err != nil {
			return err
		}
		cred := &domain.PasswordCredential{
			ID:          uuid.New(),
			UserID:      u.ID,
			Algo:        algo,
			Hash:        hash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Credentials().UpsertPassword(ctx, cred); err != nil {
			return err
		}

		if err := tx.Tokens().Issue(ctx, &domain.OneTimeToken{
			UserID:    u.ID,
			Purpose:   domain.PurposeEmailVerification,
			TokenHash: a.Sec.HashToken(verifyToken),
			ExpiresAt: now.Add(a.Cfg.VerificationTTL),
		}); err != nil {
			return err
		}

		out = dto.RegisterResponse{
			UserID:                    u.ID.String(),
			RequiresEmailVerification: true,
		}
		return nil
	})
	if err != nil {
		result = "failure"
		return nil, err
	}

	a.sendEmail(ctx, email, service.EmailVerification, map[string]string{
		"token": verifyToken,
		"link":  a.Cfg.AppURL + "/verify?token=" + verifyToken,
	})

	return &out, nil
}

// VerifyEmail consumes a verification token. For an ordinary registration it
// flips the verified flag and returns tokens so the verifying tab can log in
// directly. When a recovery staging row with a confirmed new email exists for
// the token's owner, the consumption completes recovery instead: the primary
// email swaps, the staging row dies, and every session is revoked.
func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, token string, ip, ua string) (*dto.TokenResponse, error) {
	hash := a.Sec.HashToken(token)

	var (
		user          *domain.User
		wasRecovery   bool
		recoveredMail string
		families      []uuid.UUID
	)

	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		consumed, err := tx.Tokens().Consume(ctx, hash, domain.PurposeEmailVerification)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrTokenInvalid
			}
			return err
		}

		u, err := tx.Users().GetByID(ctx, consumed.UserID)
		if err != nil {
			return domain.ErrTokenInvalid
		}

		staging, err := tx.Recovery().GetByUser(ctx, u.ID)
		switch {
		case err == nil && staging.NewEmail != nil:
			wasRecovery = true
			recoveredMail = *staging.NewEmail
			if err := tx.Users().SetPrimaryEmail(ctx, u.ID, recoveredMail); err != nil {
				return err
			}
			if err := tx.Recovery().Delete(ctx, u.ID); err != nil {
				return err
			}
			// Recovery is a security event: the email swap and the session
			// revocation commit together or not at all.
			families, err = tx.RevokeAllSessions(ctx, u.ID)
			if err != nil {
				return err
			}
		case err != nil && !errors.Is(err, store.ErrRecordNotFound):
			return err
		default:
			if err := tx.Users().SetVerified(ctx, u.ID); err != nil {
				return err
			}
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wasRecovery {
		a.dropCachedSessions(ctx, user.ID, families)
		a.Notifier.ForceLogout(user.ID, "account_recovered", "Your account was recovered. Please sign in with your new email.")
		slog.Info("account recovery completed", "user_id", user.ID)
		return nil, nil
	}

	user.IsVerified = true
	tokens, err := a.TService.Issue(ctx, user, ip, ua)
	if err != nil {
		// Verification already committed; the user can still log in normally.
		slog.Warn("token issue after verification failed", "user_id", user.ID, "error", err)
		a.Notifier.EmailVerified(user.ID, user.Email, nil)
		return nil, nil
	}
	a.Notifier.EmailVerified(user.ID, user.Email, tokens)
	return tokens, nil
}

func (a *AuthServiceImpl) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil || user.IsVerified {
		// Silent either way; resend must not reveal account existence.
		return nil
	}
	return a.reissueVerification(ctx, user)
}

func (a *AuthServiceImpl) reissueVerification(ctx context.Context, user *domain.User) error {
	token, err := a.Sec.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := a.Store.Tokens().Issue(ctx, &domain.OneTimeToken{
		UserID:    user.ID,
		Purpose:   domain.PurposeEmailVerification,
		TokenHash: a.Sec.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(a.Cfg.VerificationTTL),
	}); err != nil {
		return err
	}
	a.sendEmail(ctx, user.Email, service.EmailVerification, map[string]string{
		"token": token,
		"link":  a.Cfg.AppURL + "/verify?token=" + token,
	})
	return nil
}

// ====== Login ======

func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResponse, error) {
	result := "success"
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()

	email := strings.ToLower(strings.TrimSpace(r.Email))
	if email == "" || r.Password == "" {
		result = "failure"
		return nil, ErrEmptyCredential
	}

	// Lockout gate runs before any credential work so a locked attempt leaks
	// no timing signal. A cache outage degrades to checking credentials.
	locked, err := a.Lockout.IsLocked(ctx, email)
	if err != nil {
		slog.Warn("lockout check unavailable", "error", err)
	}
	if locked {
		result = "locked"
		return nil, domain.ErrAccountLocked
	}

	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		result = "failure"
		a.recordFailure(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}
	if user.IsDisabled {
		result = "failure"
		return nil, domain.ErrInvalidCredentials
	}

	cred, err := a.Store.Credentials().GetPasswordByUserID(ctx, user.ID)
	if err != nil {
		result = "failure"
		a.recordFailure(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	rehashNeeded, ok := a.Sec.VerifyPassword(r.Password, cred)
	if !ok {
		result = "failure"
		a.recordFailure(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	if err := a.Lockout.Reset(ctx, email); err != nil {
		slog.Warn("lockout reset failed", "error", err)
	}

	if rehashNeeded {
		if err := a.rehashPassword(ctx, cred, r.Password); err != nil {
			slog.Warn("transparent rehash failed", "user_id", user.ID, "error", err)
		}
	}

	if !user.IsVerified {
		// Unverified login re-issues a fresh token instead of failing hard.
		result = "unverified"
		if err := a.reissueVerification(ctx, user); err != nil {
			slog.Warn("verification reissue failed", "user_id", user.ID, "error", err)
		}
		return &dto.LoginResponse{RequiresVerification: true}, nil
	}

	if user.TwoFactorEnabled {
		result = "two_factor"
		if variant, ok := a.TwoFactor[user.TwoFactorMethod]; ok {
			if err := variant.IssueChallenge(ctx, user); err != nil {
				slog.Warn("two-factor challenge failed", "user_id", user.ID, "error", err)
			}
		}
		return &dto.LoginResponse{
			RequiresTwoFactor: true,
			UserID:            user.ID.String(),
			TwoFactorMethod:   user.TwoFactorMethod,
		}, nil
	}

	tokens, err := a.TService.Issue(ctx, user, ip, ua)
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.LoginResponse{Tokens: tokens}, nil
}

func (a *AuthServiceImpl) LoginTwoFactor(ctx context.Context, r dto.TwoFactorLoginRequest, ip, ua string) (*dto.TokenResponse, error) {
	userID, err := uuid.Parse(strings.TrimSpace(r.UserID))
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := a.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorDisabled
	}
	variant, ok := a.TwoFactor[user.TwoFactorMethod]
	if !ok {
		return nil, domain.ErrTwoFactorDisabled
	}

	validation, err := variant.Validate(ctx, user, r.Code)
	if err != nil {
		metrics.TwoFactorTotal.WithLabelValues(user.TwoFactorMethod, "error").Inc()
		return nil, err
	}
	if !validation.IsValid {
		metrics.TwoFactorTotal.WithLabelValues(user.TwoFactorMethod, "failure").Inc()
		a.recordFailure(ctx, user.Email)
		return nil, domain.ErrInvalidCredentials
	}
	metrics.TwoFactorTotal.WithLabelValues(user.TwoFactorMethod, "success").Inc()
	if validation.IsBackupCode {
		slog.Info("backup code consumed at login", "user_id", user.ID)
	}

	tokens, err := a.TService.Issue(ctx, user, ip, ua)
	if err != nil {
		return nil, err
	}
	a.Notifier.LoginSuccess(user.ID, user.Email)
	return tokens, nil
}

// ====== Logout ======

func (a *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.ErrTokenInvalid
	}
	rs, err := a.Store.RefreshSessions().GetByHash(ctx, a.Sec.HashToken(refreshToken))
	if err != nil {
		return domain.ErrTokenInvalid
	}
	return a.TService.RevokeFamily(ctx, rs.UserID, rs.FamilyID)
}

// ====== Password reset / change ======

func (a *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		// Generic success; never reveal whether the account exists.
		return nil
	}

	token, err := a.Sec.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := a.Store.Tokens().Issue(ctx, &domain.OneTimeToken{
		UserID:    user.ID,
		Purpose:   domain.PurposePasswordReset,
		TokenHash: a.Sec.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(a.Cfg.ResetTTL),
	}); err != nil {
		return err
	}

	a.sendEmail(ctx, user.Email, service.EmailPasswordReset, map[string]string{
		"token": token,
		"link":  a.Cfg.AppURL + "/reset-password?token=" + token,
	})
	return nil
}

func (a *AuthServiceImpl) ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error {
	if len(r.NewPassword) < a.Cfg.MinPasswordLen {
		return ErrPasswordLength
	}
	hash := a.Sec.HashToken(r.Token)

	var (
		userID   uuid.UUID
		families []uuid.UUID
	)
	err := a.Store.WithTx(ctx, func(tx storeTx) error {
		consumed, err := tx.Tokens().Consume(ctx, hash, domain.PurposePasswordReset)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrTokenInvalid
			}
			return err
		}
		userID = consumed.UserID

		newHash, salt, paramsJSON, algo, ver, err := a.Sec.HashPassword(r.NewPassword)
		if err != nil {
			return err
		}
		if err := tx.Credentials().UpsertPassword(ctx, &domain.PasswordCredential{
			UserID:      userID,
			Algo:        algo,
			Hash:        newHash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
		}); err != nil {
			return err
		}

		// A reset that leaves old sessions alive is broken, so revocation
		// rides the same transaction: a failure rolls the credential back
		// and leaves the token consumable on retry.
		families, err = tx.RevokeAllSessions(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	a.dropCachedSessions(ctx, userID, families)
	a.Notifier.ForceLogout(userID, "password_reset", "Your password was reset. Please sign in again.")

	if user, err := a.Store.Users().GetByID(ctx, userID); err == nil {
		a.Notifier.PasswordResetDone(user.Email)
		a.sendEmail(ctx, user.Email, service.EmailPasswordChanged, map[string]string{})
	}
	return nil
}

func (a *AuthServiceImpl) ChangePassword(ctx context.Context, userIDStr string, r dto.ChangePasswordRequest) error {
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if len(r.NewPassword) < a.Cfg.MinPasswordLen {
		return ErrPasswordLength
	}

	user, err := a.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	cred, err := a.Store.Credentials().GetPasswordByUserID(ctx, userID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if _, ok := a.Sec.VerifyPassword(r.CurrentPassword, cred); !ok {
		return domain.ErrInvalidCredentials
	}

	newHash, salt, paramsJSON, algo, ver, err := a.Sec.HashPassword(r.NewPassword)
	if err != nil {
		return err
	}

	var families []uuid.UUID
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		if err := tx.Credentials().UpsertPassword(ctx, &domain.PasswordCredential{
			UserID:      userID,
			Algo:        algo,
			Hash:        newHash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
		}); err != nil {
			return err
		}
		families, err = tx.RevokeAllSessions(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	a.dropCachedSessions(ctx, userID, families)
	a.Notifier.ForceLogout(userID, "password_changed", "Your password was changed. Please sign in again.")
	a.sendEmail(ctx, user.Email, service.EmailPasswordChanged, map[string]string{})
	return nil
}

// ====== Helpers ======

func (a *AuthServiceImpl) recordFailure(ctx context.Context, email string) {
	lockedNow, err := a.Lockout.RecordFailure(ctx, email)
	if err != nil {
		slog.Warn("failure counter unavailable", "error", err)
		return
	}
	if lockedNow {
		metrics.LockoutsTotal.Inc()
		slog.Warn("account locked after repeated failures", "email", email)
	}
}

func (a *AuthServiceImpl) rehashPassword(ctx context.Context, cred *domain.PasswordCredential, password string) error {
	newHash, newSalt, newParamsJSON, algo, ver, err := a.Sec.HashPassword(password)
	if err != nil {
		return err
	}
	cred.Algo = algo
	cred.Hash = newHash
	cred.Salt = newSalt
	cred.ParamsJSON = newParamsJSON
	cred.PasswordVer = ver
	cred.UpdatedAt = time.Now().UTC()
	return a.Store.Credentials().UpsertPassword(ctx, cred)
}

// dropCachedSessions runs after the revoking transaction commits. The rows
// are already dead, so cache cleanup is best-effort; a surviving entry ages
// out at the cache TTL.
func (a *AuthServiceImpl) dropCachedSessions(ctx context.Context, userID uuid.UUID, families []uuid.UUID) {
	metrics.SessionsRevokedTotal.Add(float64(len(families)))
	if a.Cache == nil {
		return
	}
	for _, familyID := range families {
		if err := a.Cache.Delete(ctx, userID, familyID); err != nil {
			slog.Warn("session cache invalidation failed", "user_id", userID, "family_id", familyID, "error", err)
		}
	}
}

// sendEmail is best-effort everywhere: a notification failure never blocks
// the security action that triggered it.
func (a *AuthServiceImpl) sendEmail(ctx context.Context, to, template string, params map[string]string) {
	if err := a.Email.Send(ctx, to, template, params); err != nil {
		slog.Warn("email send failed", "to", to, "template", template, "error", err)
	}
}
