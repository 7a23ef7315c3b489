package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const broadcastChannel = "auth.events"
const globalRoom = "global"

// Room name prefixes. User rooms require an authenticated socket; the
// verification and reset rooms may be joined anonymously by email, so a
// not-yet-logged-in tab can hear about progress made elsewhere.
func userRoom(id domain.UserID) string { return "user:" + id.String() }
func verifyRoom(email string) string   { return "verify:" + strings.ToLower(email) }
func resetRoom(email string) string    { return "reset:" + strings.ToLower(email) }

// conn is one connected socket. Writes are serialized by the per-connection
// mutex; gorilla/websocket forbids concurrent writers.
type conn struct {
	id uuid.UUID
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(event ServerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub owns the room membership maps for this process. Cross-instance reach
// comes from the redis channel: Emit publishes, every subscribed instance
// delivers to its local members. When redis is down the hub degrades to
// local-only delivery.
type Hub struct {
	cache *cache.Cache

	mu    sync.RWMutex
	conns map[uuid.UUID]*conn
	// rooms maps room name to the member socket ids.
	rooms map[string]map[uuid.UUID]struct{}
	// joined is the reverse index used on disconnect.
	joined map[uuid.UUID]map[string]struct{}
}

func NewHub(c *cache.Cache) *Hub {
	return &Hub{
		cache:  c,
		conns:  make(map[uuid.UUID]*conn),
		rooms:  make(map[string]map[uuid.UUID]struct{}),
		joined: make(map[uuid.UUID]map[string]struct{}),
	}
}

var _ service.Notifier = (*Hub)(nil)

// Run consumes the cross-instance broadcast channel until ctx ends. Safe to
// skip entirely in single-instance deployments.
func (h *Hub) Run(ctx context.Context) {
	if h.cache == nil {
		return
	}
	sub := h.cache.Subscribe(ctx, broadcastChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("malformed broadcast frame", "error", err)
				continue
			}
			h.deliverLocal(env.Room, env.Event)
		}
	}
}

// ====== Connection lifecycle ======

// Register adds a socket and returns its id. The socket belongs to the
// global room from the start so platform-wide broadcasts reach it even
// before authentication.
func (h *Hub) Register(ws *websocket.Conn) uuid.UUID {
	c := &conn{id: uuid.New(), ws: ws}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.Join(c.id, globalRoom)
	return c.id
}

// Unregister drops the socket from every room it joined and sweeps the
// anonymous rooms for any orphaned membership, then garbage-collects empty
// rooms.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, id)
	for room := range h.joined[id] {
		h.leaveLocked(id, room)
	}
	delete(h.joined, id)

	// Orphan sweep: anonymous rooms can hold ids that never made it into
	// the reverse index if a join raced the disconnect.
	for room, members := range h.rooms {
		if _, ok := members[id]; ok {
			h.leaveLocked(id, room)
		}
	}
}

func (h *Hub) Join(id uuid.UUID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uuid.UUID]struct{})
	}
	h.rooms[room][id] = struct{}{}
	if h.joined[id] == nil {
		h.joined[id] = make(map[string]struct{})
	}
	h.joined[id][room] = struct{}{}
}

// JoinUser puts an authenticated socket in its personal room.
func (h *Hub) JoinUser(id uuid.UUID, userID domain.UserID) {
	h.Join(id, userRoom(userID))
}

// JoinVerification lets an anonymous socket wait for a verification that
// completes elsewhere.
func (h *Hub) JoinVerification(id uuid.UUID, email string) {
	h.Join(id, verifyRoom(email))
}

// JoinPasswordReset is the anonymous reset-waiting variant.
func (h *Hub) JoinPasswordReset(id uuid.UUID, email string) {
	h.Join(id, resetRoom(email))
}

func (h *Hub) leaveLocked(id uuid.UUID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Send writes one event to a single socket, serialized against concurrent
// room deliveries to the same connection.
func (h *Hub) Send(id uuid.UUID, event ServerEvent) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.send(event); err != nil {
		slog.Debug("direct send failed", "socket_id", id, "error", err)
	}
}

// RoomSize reports local membership. Exposed for tests and debug endpoints.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ====== Emission ======

// Emit fans an event out to a room across all instances. The redis publish
// carries it everywhere including back to this process; only when redis is
// unreachable does the hub deliver locally itself.
func (h *Hub) Emit(room string, event ServerEvent) {
	metrics.BroadcastsTotal.WithLabelValues(event.Type).Inc()

	if h.cache != nil {
		payload, err := json.Marshal(envelope{Room: room, Event: event})
		if err == nil {
			if err := h.cache.Publish(context.Background(), broadcastChannel, payload); err == nil {
				return
			}
			slog.Warn("broadcast publish failed, delivering locally", "room", room)
		}
	}
	h.deliverLocal(room, event)
}

func (h *Hub) deliverLocal(room string, event ServerEvent) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(event); err != nil {
			slog.Debug("room delivery failed", "room", room, "socket_id", c.id, "error", err)
		}
	}
}

// ====== service.Notifier ======

func (h *Hub) ForceLogout(userID domain.UserID, reason, message string) {
	h.Emit(userRoom(userID), ServerEvent{
		Type:    EventForceLogout,
		Reason:  reason,
		Message: message,
	})
}

// GlobalLogout reaches every connected socket. Reserved for platform-wide
// security incidents.
func (h *Hub) GlobalLogout(reason, message string) {
	h.Emit(globalRoom, ServerEvent{
		Type:    EventGlobalLogout,
		Reason:  reason,
		Message: message,
	})
}

// EmailVerified tells both the user's own devices and any anonymous tab
// waiting on the verification room. The attached tokens let that tab log in
// without a second credential entry.
func (h *Hub) EmailVerified(userID domain.UserID, email string, tokens *dto.TokenResponse) {
	event := ServerEvent{
		Type:   EventEmailVerified,
		Email:  email,
		Tokens: tokens,
	}
	h.Emit(verifyRoom(email), event)
	h.Emit(userRoom(userID), event)
}

func (h *Hub) PasswordResetDone(email string) {
	h.Emit(resetRoom(email), ServerEvent{
		Type:    EventForceLogout,
		Reason:  "password_reset",
		Message: "The password was reset. Please sign in with the new password.",
		Email:   strings.ToLower(email),
	})
}

// LoginSuccess follows the same dual delivery: a tab parked on the
// verification room learns that the second factor cleared elsewhere.
func (h *Hub) LoginSuccess(userID domain.UserID, email string) {
	event := ServerEvent{
		Type:  EventLoginSuccess,
		Email: email,
	}
	h.Emit(verifyRoom(email), event)
	h.Emit(userRoom(userID), event)
}
