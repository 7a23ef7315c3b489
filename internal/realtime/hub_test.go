package realtime

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type staticTokenVerifier struct {
	identity *service.AccessIdentity
}

func (s *staticTokenVerifier) Issue(ctx context.Context, user *domain.User, ip, ua string) (*dto.TokenResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *staticTokenVerifier) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *staticTokenVerifier) VerifyAccess(ctx context.Context, accessToken string) (*service.AccessIdentity, error) {
	if accessToken != "good-token" || s.identity == nil {
		return nil, domain.ErrTokenInvalid
	}
	return s.identity, nil
}

func (s *staticTokenVerifier) RevokeFamily(ctx context.Context, userID domain.UserID, familyID domain.FamilyID) error {
	return errors.New("not implemented")
}

func (s *staticTokenVerifier) RevokeAllForUser(ctx context.Context, userID domain.UserID) (int64, error) {
	return 0, errors.New("not implemented")
}

type hubHarness struct {
	hub    *Hub
	server *httptest.Server
	userID domain.UserID
}

func newHubHarness(t *testing.T, c *cache.Cache) *hubHarness {
	t.Helper()
	userID := uuid.New()
	hub := NewHub(c)
	handler := NewHandler(hub, &staticTokenVerifier{identity: &service.AccessIdentity{UserID: userID}})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &hubHarness{hub: hub, server: server, userID: userID}
}

func (h *hubHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) ServerEvent {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ServerEvent
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return event
}

func waitForRoom(t *testing.T, hub *Hub, room string, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(room) == size {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %q never reached size %d (have %d)", room, size, hub.RoomSize(room))
}

func TestHubForceLogoutReachesAuthenticatedSocket(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)

	if err := ws.WriteJSON(ClientMessage{Type: MsgAuthenticate, AccessToken: "good-token"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitForRoom(t, h.hub, userRoom(h.userID), 1)

	h.hub.ForceLogout(h.userID, "password_reset", "Your password was reset.")
	event := readEvent(t, ws)
	if event.Type != EventForceLogout || event.Reason != "password_reset" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHubRejectsBadToken(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)

	if err := ws.WriteJSON(ClientMessage{Type: MsgAuthenticate, AccessToken: "forged"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	event := readEvent(t, ws)
	if event.Type != EventError || event.Reason != "invalid_token" {
		t.Fatalf("expected invalid_token error, got %+v", event)
	}
	if h.hub.RoomSize(userRoom(h.userID)) != 0 {
		t.Fatalf("forged token must not join the user room")
	}
}

func TestHubVerificationRoomGetsTokens(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)

	// The waiting tab joined with a differently-cased email.
	if err := ws.WriteJSON(ClientMessage{Type: MsgJoinVerifyRoom, Email: "Alice@Example.com"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitForRoom(t, h.hub, verifyRoom("alice@example.com"), 1)

	tokens := &dto.TokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}
	h.hub.EmailVerified(h.userID, "alice@example.com", tokens)

	event := readEvent(t, ws)
	if event.Type != EventEmailVerified || event.Email != "alice@example.com" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Tokens == nil || event.Tokens.AccessToken != "access" {
		t.Fatalf("expected tokens on the verification event, got %+v", event.Tokens)
	}
}

func TestHubGlobalLogoutReachesAnonymousSockets(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)
	waitForRoom(t, h.hub, "global", 1)

	h.hub.GlobalLogout("incident", "All sessions were signed out.")
	event := readEvent(t, ws)
	if event.Type != EventGlobalLogout {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHubUnregisterCleansRooms(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)

	if err := ws.WriteJSON(ClientMessage{Type: MsgJoinResetRoom, Email: "bob@example.com"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitForRoom(t, h.hub, resetRoom("bob@example.com"), 1)

	ws.Close()
	waitForRoom(t, h.hub, resetRoom("bob@example.com"), 0)
	waitForRoom(t, h.hub, "global", 0)
}

func TestHubEmitRoundTripsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHubHarness(t, cache.New(rdb))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.hub.Run(ctx)

	// Publishing before the subscriber is registered would drop the event.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := rdb.PubSubNumSub(ctx, broadcastChannel).Result(); err == nil && n[broadcastChannel] > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ws := h.dial(t)
	if err := ws.WriteJSON(ClientMessage{Type: MsgAuthenticate, AccessToken: "good-token"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitForRoom(t, h.hub, userRoom(h.userID), 1)

	// The event travels out through redis and back in via the subscriber.
	h.hub.ForceLogout(h.userID, "account_deleted", "This account no longer exists.")
	event := readEvent(t, ws)
	if event.Type != EventForceLogout || event.Reason != "account_deleted" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHubUnknownMessageType(t *testing.T) {
	h := newHubHarness(t, nil)
	ws := h.dial(t)

	if err := ws.WriteJSON(ClientMessage{Type: "subscribe"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	event := readEvent(t, ws)
	if event.Type != EventError || event.Reason != "unknown_type" {
		t.Fatalf("expected unknown_type error, got %+v", event)
	}
}
