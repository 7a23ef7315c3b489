package impl

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

// totpCodeAt derives the expected code independently of the production path.
func totpCodeAt(t *testing.T, secretBase32 string, at time.Time) string {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("bad secret: %v", err)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(at.Unix()/30))
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", bin%1000000)
}

type memoryMFA struct {
	secrets map[uuid.UUID]*domain.TwoFactorSecret
	codes   map[uuid.UUID][]*domain.BackupCode
}

func newMemoryMFA() *memoryMFA {
	return &memoryMFA{
		secrets: make(map[uuid.UUID]*domain.TwoFactorSecret),
		codes:   make(map[uuid.UUID][]*domain.BackupCode),
	}
}

func (m *memoryMFA) UpsertSecret(ctx context.Context, sec *domain.TwoFactorSecret) error {
	cp := *sec
	m.secrets[sec.UserID] = &cp
	return nil
}

func (m *memoryMFA) GetSecret(ctx context.Context, userID uuid.UUID) (*domain.TwoFactorSecret, error) {
	sec, ok := m.secrets[userID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *sec
	return &cp, nil
}

func (m *memoryMFA) MarkSecretVerified(ctx context.Context, userID uuid.UUID) error {
	if sec, ok := m.secrets[userID]; ok {
		sec.Verified = true
	}
	return nil
}

func (m *memoryMFA) DeleteSecret(ctx context.Context, userID uuid.UUID) error {
	delete(m.secrets, userID)
	return nil
}

func (m *memoryMFA) ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, hashes [][]byte) error {
	codes := make([]*domain.BackupCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, &domain.BackupCode{ID: uuid.New(), UserID: userID, CodeHash: h})
	}
	m.codes[userID] = codes
	return nil
}

func (m *memoryMFA) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, hash []byte) (bool, error) {
	for _, code := range m.codes[userID] {
		if !code.IsUsed && bytes.Equal(code.CodeHash, hash) {
			code.IsUsed = true
			now := time.Now().UTC()
			code.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryMFA) DeleteBackupCodes(ctx context.Context, userID uuid.UUID) error {
	delete(m.codes, userID)
	return nil
}

func (u *memoryUsers) SetTwoFactor(ctx context.Context, userID uuid.UUID, enabled bool, method string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr, ok := u.users[userID]; ok {
		usr.TwoFactorEnabled = enabled
		usr.TwoFactorMethod = method
	}
	return nil
}

type totpHarness struct {
	svc      *TwoFactorTOTPImpl
	mfa      *memoryMFA
	store    *memoryStore
	sec      *security.Service
	tokens   *stubTokenService
	notifier *recordNotifier
	user     *domain.User
}

func newTOTPHarness(t *testing.T) *totpHarness {
	t.Helper()
	sec, err := security.New(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("security init failed: %v", err)
	}
	st := newMemoryStore()
	user := &domain.User{ID: uuid.New(), Email: "alice@example.com", IsVerified: true}
	st.users[user.ID] = user

	hash, salt, paramsJSON, algo, ver, err := sec.HashPassword("hunter2222")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	st.creds[user.ID] = &domain.PasswordCredential{
		UserID: user.ID, Algo: algo, Hash: hash, Salt: salt, ParamsJSON: paramsJSON, PasswordVer: ver,
	}

	h := &totpHarness{
		mfa:      newMemoryMFA(),
		store:    st,
		sec:      sec,
		tokens:   &stubTokenService{},
		notifier: &recordNotifier{},
		user:     user,
	}
	h.svc = &TwoFactorTOTPImpl{
		MFA:      h.mfa,
		Users:    (*memoryUsers)(st),
		Creds:    (*memoryCreds)(st),
		Sec:      sec,
		TOTP:     security.NewTOTP("test"),
		TService: h.tokens,
		Notifier: h.notifier,
	}
	return h
}

func TestTOTPSetupAndEnable(t *testing.T) {
	h := newTOTPHarness(t)
	ctx := context.Background()

	setup, err := h.svc.Setup(ctx, h.user)
	if err != nil {
		t.Fatalf("setup errored: %v", err)
	}
	if setup.SecretBase32 == "" || len(setup.BackupCodes) != 10 {
		t.Fatalf("unexpected setup response: %+v", setup)
	}

	// The stored secret is encrypted, never the plaintext seed.
	stored := h.mfa.secrets[h.user.ID]
	if stored == nil || bytes.Contains(stored.Secret, []byte(setup.SecretBase32)) {
		t.Fatalf("secret stored in plaintext")
	}

	// Setup alone does not enable.
	if h.user.TwoFactorEnabled {
		t.Fatalf("setup must not enable the factor")
	}
	if err := h.svc.Enable(ctx, h.user, "000000"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}

	code := totpCodeAt(t, setup.SecretBase32, time.Now())
	if err := h.svc.Enable(ctx, h.user, code); err != nil {
		t.Fatalf("enable errored: %v", err)
	}
	if !h.mfa.secrets[h.user.ID].Verified {
		t.Fatalf("secret not marked verified")
	}
	if u := h.store.users[h.user.ID]; !u.TwoFactorEnabled || u.TwoFactorMethod != service.TwoFactorTOTP {
		t.Fatalf("user flags not set: %+v", u)
	}
}

func TestTOTPValidate(t *testing.T) {
	h := newTOTPHarness(t)
	ctx := context.Background()

	setup, err := h.svc.Setup(ctx, h.user)
	if err != nil {
		t.Fatalf("setup errored: %v", err)
	}

	code := totpCodeAt(t, setup.SecretBase32, time.Now())
	res, err := h.svc.Validate(ctx, h.user, code)
	if err != nil || !res.IsValid || res.IsBackupCode {
		t.Fatalf("expected valid totp code, got %+v, %v", res, err)
	}

	res, err = h.svc.Validate(ctx, h.user, "999999999999")
	if err != nil || res.IsValid {
		t.Fatalf("garbage code validated: %+v, %v", res, err)
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	h := newTOTPHarness(t)
	ctx := context.Background()

	setup, err := h.svc.Setup(ctx, h.user)
	if err != nil {
		t.Fatalf("setup errored: %v", err)
	}
	backup := setup.BackupCodes[3]

	res, err := h.svc.Validate(ctx, h.user, backup)
	if err != nil || !res.IsValid || !res.IsBackupCode {
		t.Fatalf("expected backup code hit, got %+v, %v", res, err)
	}

	// Second use falls through to TOTP and fails.
	res, err = h.svc.Validate(ctx, h.user, backup)
	if err != nil || res.IsValid {
		t.Fatalf("used backup code validated again: %+v, %v", res, err)
	}
}

func TestTOTPDisable(t *testing.T) {
	h := newTOTPHarness(t)
	ctx := context.Background()

	setup, err := h.svc.Setup(ctx, h.user)
	if err != nil {
		t.Fatalf("setup errored: %v", err)
	}
	code := totpCodeAt(t, setup.SecretBase32, time.Now())
	if err := h.svc.Enable(ctx, h.user, code); err != nil {
		t.Fatalf("enable errored: %v", err)
	}
	h.user.TwoFactorEnabled = true
	h.user.TwoFactorMethod = service.TwoFactorTOTP

	// Wrong password proof rejected, nothing torn down.
	if err := h.svc.Disable(ctx, h.user, "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, ok := h.mfa.secrets[h.user.ID]; !ok {
		t.Fatalf("secret deleted despite failed proof")
	}

	if err := h.svc.Disable(ctx, h.user, "hunter2222"); err != nil {
		t.Fatalf("disable errored: %v", err)
	}
	if _, ok := h.mfa.secrets[h.user.ID]; ok {
		t.Fatalf("secret survived disable")
	}
	if len(h.mfa.codes[h.user.ID]) != 0 {
		t.Fatalf("backup codes survived disable")
	}
	if len(h.tokens.revokeAll) != 1 || h.tokens.revokeAll[0] != h.user.ID {
		t.Fatalf("expected full session revocation, got %v", h.tokens.revokeAll)
	}
	if len(h.notifier.forceLogouts) != 1 || h.notifier.forceLogouts[0] != "two_factor_disabled" {
		t.Fatalf("expected forceLogout broadcast, got %v", h.notifier.forceLogouts)
	}
	if u := h.store.users[h.user.ID]; u.TwoFactorEnabled || u.TwoFactorMethod != "" {
		t.Fatalf("user flags not cleared: %+v", u)
	}
}
