package impl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type memorySessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.UserSession
	touches  []uuid.UUID
	failGet  error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[uuid.UUID]*domain.UserSession)}
}

func (s *memorySessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memorySessions) GetByFamily(ctx context.Context, userID, familyID uuid.UUID) (*domain.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RefreshFamilyID == familyID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (s *memorySessions) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.UserSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memorySessions) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, id)
	if sess, ok := s.sessions[id]; ok {
		sess.LastActiveAt = at
	}
	return nil
}

func (s *memorySessions) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.touches)
}

type sessionHarness struct {
	svc      *SessionServiceImpl
	sessions *memorySessions
	tokens   *stubTokenService
	notifier *recordNotifier
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &sessionHarness{
		sessions: newMemorySessions(),
		tokens:   &stubTokenService{},
		notifier: &recordNotifier{},
	}
	h.svc = &SessionServiceImpl{
		Sessions: h.sessions,
		Cache:    cache.NewSessionCache(cache.New(rdb), 5*time.Minute),
		TService: h.tokens,
		Notifier: h.notifier,
	}
	return h
}

func (h *sessionHarness) addSession(userID uuid.UUID) *domain.UserSession {
	sess := &domain.UserSession{
		ID:              uuid.New(),
		UserID:          userID,
		RefreshFamilyID: uuid.New(),
		DeviceType:      "desktop",
		Browser:         "Firefox",
		OS:              "Linux",
		IP:              "203.0.113.7",
		LastActiveAt:    time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	h.sessions.mu.Lock()
	h.sessions.sessions[sess.ID] = sess
	h.sessions.mu.Unlock()
	return sess
}

func TestSessionListMapsRecords(t *testing.T) {
	h := newSessionHarness(t)
	userID := uuid.New()
	sess := h.addSession(userID)
	h.addSession(uuid.New())

	res, err := h.svc.List(context.Background(), userID)
	if err != nil {
		t.Fatalf("list errored: %v", err)
	}
	if len(res.Sessions) != 1 {
		t.Fatalf("expected the user's single session, got %d", len(res.Sessions))
	}
	got := res.Sessions[0]
	if got.ID != sess.ID.String() || got.Browser != "Firefox" || got.IP != "203.0.113.7" {
		t.Fatalf("mapped session mismatch: %+v", got)
	}
}

func TestSessionRevokeKillsFamily(t *testing.T) {
	h := newSessionHarness(t)
	userID := uuid.New()
	sess := h.addSession(userID)

	if err := h.svc.Revoke(context.Background(), userID, sess.ID); err != nil {
		t.Fatalf("revoke errored: %v", err)
	}
	if len(h.tokens.revokeFam) != 1 || h.tokens.revokeFam[0] != sess.RefreshFamilyID {
		t.Fatalf("expected family revocation, got %v", h.tokens.revokeFam)
	}
	if len(h.notifier.forceLogouts) != 1 || h.notifier.forceLogouts[0] != "session_revoked" {
		t.Fatalf("expected forceLogout broadcast, got %v", h.notifier.forceLogouts)
	}
}

func TestSessionRevokeForeignSessionIsNotFound(t *testing.T) {
	h := newSessionHarness(t)
	sess := h.addSession(uuid.New())

	// Another user's session looks exactly like a missing one.
	if err := h.svc.Revoke(context.Background(), uuid.New(), sess.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.svc.Revoke(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	if len(h.tokens.revokeFam) != 0 {
		t.Fatalf("no family should be revoked")
	}
}

func TestSessionValidateAcceptsLiveSession(t *testing.T) {
	h := newSessionHarness(t)
	userID := uuid.New()
	sess := h.addSession(userID)

	if err := h.svc.Validate(context.Background(), userID, sess.RefreshFamilyID); err != nil {
		t.Fatalf("validate errored: %v", err)
	}

	// Second pass is served from cache; both bump activity in the background.
	if err := h.svc.Validate(context.Background(), userID, sess.RefreshFamilyID); err != nil {
		t.Fatalf("cached validate errored: %v", err)
	}
	waitFor(t, func() bool { return h.sessions.touchCount() == 2 })
}

func TestSessionValidateRejectsRevoked(t *testing.T) {
	h := newSessionHarness(t)
	userID := uuid.New()
	sess := h.addSession(userID)
	now := time.Now().UTC()
	h.sessions.mu.Lock()
	h.sessions.sessions[sess.ID].RevokedAt = &now
	h.sessions.mu.Unlock()

	if err := h.svc.Validate(context.Background(), userID, sess.RefreshFamilyID); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected rejection for revoked session, got %v", err)
	}
}

func TestSessionValidateSoftFails(t *testing.T) {
	h := newSessionHarness(t)

	// No session row at all: the access token carries the request.
	if err := h.svc.Validate(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("missing record should soft-fail, got %v", err)
	}

	// Store outage: same policy.
	h.sessions.failGet = errors.New("connection refused")
	if err := h.svc.Validate(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("store outage should soft-fail, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
