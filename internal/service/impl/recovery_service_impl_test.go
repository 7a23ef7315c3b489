package impl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

func (u *memoryUsers) GetByRecoveryEmail(ctx context.Context, email string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	id, ok := u.recovIndex[email]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *u.users[id]
	return &cp, nil
}

func (u *memoryUsers) SetRecoveryEmail(ctx context.Context, userID uuid.UUID, email *string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.users[userID]
	if !ok {
		return store.ErrRecordNotFound
	}
	if usr.RecoveryEmail != nil {
		delete(u.recovIndex, *usr.RecoveryEmail)
	}
	usr.RecoveryEmail = email
	if email != nil {
		u.recovIndex[*email] = userID
	}
	return nil
}

type memoryStagingStore memoryStore

func (r *memoryStagingStore) Replace(ctx context.Context, staging *domain.RecoveryStaging) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if staging.ID == uuid.Nil {
		staging.ID = uuid.New()
	}
	cp := *staging
	r.staging[staging.UserID] = &cp
	return nil
}

func (r *memoryStagingStore) GetByTokenHash(ctx context.Context, hash []byte) (*domain.RecoveryStaging, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.staging {
		if string(st.TokenHash) == string(hash) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (r *memoryStagingStore) SetNewEmail(ctx context.Context, id uuid.UUID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.staging {
		if st.ID == id {
			st.NewEmail = &email
			return nil
		}
	}
	return store.ErrRecordNotFound
}

func (r *memoryStagingStore) Delete(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.staging, userID)
	return nil
}

type recoveryHarness struct {
	svc   *RecoveryServiceImpl
	store *memoryStore
	sec   *stubSecurity
	email *captureEmailSender
}

func newRecoveryHarness() *recoveryHarness {
	st := newMemoryStore()
	h := &recoveryHarness{
		store: st,
		sec:   &stubSecurity{},
		email: &captureEmailSender{},
	}
	h.svc = &RecoveryServiceImpl{
		Users:   (*memoryUsers)(st),
		Staging: (*memoryStagingStore)(st),
		Tokens:  (*memoryTokens)(st),
		Sec:     h.sec,
		Email:   h.email,
		Cfg: RecoveryConfig{
			TokenTTL:        time.Hour,
			VerificationTTL: 30 * time.Minute,
			AppURL:          "http://app.test",
		},
	}
	return h
}

func (h *recoveryHarness) addUser(email string, recoveryEmail string) *domain.User {
	user := &domain.User{ID: uuid.New(), Email: email, IsVerified: true}
	if recoveryEmail != "" {
		user.RecoveryEmail = &recoveryEmail
	}
	h.store.mu.Lock()
	h.store.users[user.ID] = user
	h.store.emailIndex[email] = user.ID
	if recoveryEmail != "" {
		h.store.recovIndex[recoveryEmail] = user.ID
	}
	h.store.mu.Unlock()
	return user
}

func TestRecoveryRequestUnknownEmailSilent(t *testing.T) {
	h := newRecoveryHarness()
	if err := h.svc.Request(context.Background(), "stranger@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if len(h.email.sends) != 0 {
		t.Fatalf("no email should go to unknown recovery addresses")
	}
	if len(h.store.staging) != 0 {
		t.Fatalf("no staging row should exist")
	}
}

func TestRecoveryRequestCreatesStaging(t *testing.T) {
	h := newRecoveryHarness()
	user := h.addUser("alice@example.com", "backup@example.com")

	if err := h.svc.Request(context.Background(), "Backup@Example.com"); err != nil {
		t.Fatalf("request errored: %v", err)
	}
	staging := h.store.staging[user.ID]
	if staging == nil || staging.NewEmail != nil {
		t.Fatalf("expected staging without new email, got %+v", staging)
	}
	if len(h.email.sends) != 1 || h.email.sends[0].template != service.EmailRecovery {
		t.Fatalf("expected recovery email, got %+v", h.email.sends)
	}
	if h.email.sends[0].to != "backup@example.com" {
		t.Fatalf("recovery email sent to %q", h.email.sends[0].to)
	}
}

func TestRecoveryConfirmStagesNewEmail(t *testing.T) {
	h := newRecoveryHarness()
	user := h.addUser("alice@example.com", "backup@example.com")
	h.svc.Request(context.Background(), "backup@example.com")
	token := h.email.sends[0].params["token"]

	res, err := h.svc.Confirm(context.Background(), dto.RecoveryConfirmRequest{Token: token, NewEmail: "fresh@example.com"})
	if err != nil {
		t.Fatalf("confirm errored: %v", err)
	}
	if !res.RequiresEmailVerification {
		t.Fatalf("expected verification requirement")
	}
	staging := h.store.staging[user.ID]
	if staging.NewEmail == nil || *staging.NewEmail != "fresh@example.com" {
		t.Fatalf("new email not staged: %+v", staging)
	}

	// The verification token goes to the new address.
	last := h.email.sends[len(h.email.sends)-1]
	if last.to != "fresh@example.com" || last.template != service.EmailVerification {
		t.Fatalf("unexpected verification email: %+v", last)
	}
	live := (*memoryTokens)(h.store).liveTokens(user.ID, domain.PurposeEmailVerification)
	if len(live) != 1 {
		t.Fatalf("expected one live verification token, got %d", len(live))
	}
}

func TestRecoveryConfirmRejectsForeignEmail(t *testing.T) {
	h := newRecoveryHarness()
	h.addUser("alice@example.com", "backup@example.com")
	h.addUser("taken@example.com", "")
	h.svc.Request(context.Background(), "backup@example.com")
	token := h.email.sends[0].params["token"]

	_, err := h.svc.Confirm(context.Background(), dto.RecoveryConfirmRequest{Token: token, NewEmail: "taken@example.com"})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
}

func TestRecoveryConfirmAllowsCurrentEmail(t *testing.T) {
	h := newRecoveryHarness()
	h.addUser("alice@example.com", "backup@example.com")
	h.svc.Request(context.Background(), "backup@example.com")
	token := h.email.sends[0].params["token"]

	// Re-confirming the current address is an idempotent correction.
	if _, err := h.svc.Confirm(context.Background(), dto.RecoveryConfirmRequest{Token: token, NewEmail: "alice@example.com"}); err != nil {
		t.Fatalf("confirm with own email errored: %v", err)
	}
}

func TestUpdateRecoveryEmail(t *testing.T) {
	h := newRecoveryHarness()
	user := h.addUser("alice@example.com", "")

	if err := h.svc.UpdateRecoveryEmail(context.Background(), user.ID, " Backup@Example.com "); err != nil {
		t.Fatalf("update errored: %v", err)
	}
	h.store.mu.Lock()
	got := h.store.users[user.ID].RecoveryEmail
	h.store.mu.Unlock()
	if got == nil || *got != "backup@example.com" {
		t.Fatalf("recovery email not normalized and stored: %v", got)
	}

	// The stored address immediately serves the recovery flow.
	if err := h.svc.Request(context.Background(), "backup@example.com"); err != nil {
		t.Fatalf("request against new address errored: %v", err)
	}
	if len(h.email.sends) != 1 {
		t.Fatalf("expected recovery email to the new address")
	}

	// An empty address clears it.
	if err := h.svc.UpdateRecoveryEmail(context.Background(), user.ID, ""); err != nil {
		t.Fatalf("clear errored: %v", err)
	}
	h.store.mu.Lock()
	cleared := h.store.users[user.ID].RecoveryEmail
	h.store.mu.Unlock()
	if cleared != nil {
		t.Fatalf("recovery email not cleared: %v", *cleared)
	}
}

func TestUpdateRecoveryEmailRejectsPrimary(t *testing.T) {
	h := newRecoveryHarness()
	user := h.addUser("alice@example.com", "")

	if err := h.svc.UpdateRecoveryEmail(context.Background(), user.ID, "Alice@Example.com"); !errors.Is(err, ErrRecoveryIsPrimary) {
		t.Fatalf("expected rejection of the primary address, got %v", err)
	}
	if err := h.svc.UpdateRecoveryEmail(context.Background(), uuid.New(), "other@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestRecoveryConfirmRejectsExpiredToken(t *testing.T) {
	h := newRecoveryHarness()
	user := h.addUser("alice@example.com", "backup@example.com")
	h.svc.Request(context.Background(), "backup@example.com")
	token := h.email.sends[0].params["token"]

	h.store.mu.Lock()
	h.store.staging[user.ID].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	h.store.mu.Unlock()

	if _, err := h.svc.Confirm(context.Background(), dto.RecoveryConfirmRequest{Token: token, NewEmail: "fresh@example.com"}); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected token invalid, got %v", err)
	}

	if _, err := h.svc.Confirm(context.Background(), dto.RecoveryConfirmRequest{Token: "bogus", NewEmail: "fresh@example.com"}); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected token invalid for unknown token, got %v", err)
	}
}
