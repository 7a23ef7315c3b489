package realtime

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser origin check belongs to the reverse proxy in this
	// deployment; sockets carry no privileges until they authenticate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades /v1/ws and runs the per-socket read loop. A socket starts
// anonymous: it may join the verification or reset room for an email, and
// gains its user room only after presenting a valid access token.
type Handler struct {
	Hub    *Hub
	Tokens service.TokenService
}

func NewHandler(hub *Hub, tokens service.TokenService) *Handler {
	return &Handler{Hub: hub, Tokens: tokens}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	id := h.Hub.Register(ws)
	defer h.Hub.Unregister(id)

	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgAuthenticate:
			identity, err := h.Tokens.VerifyAccess(r.Context(), msg.AccessToken)
			if err != nil {
				h.Hub.Send(id, errorEvent("invalid_token", "Access token rejected."))
				continue
			}
			h.Hub.JoinUser(id, identity.UserID)

		case MsgJoinVerifyRoom:
			if strings.TrimSpace(msg.Email) == "" {
				h.Hub.Send(id, errorEvent("missing_email", "An email address is required."))
				continue
			}
			h.Hub.JoinVerification(id, msg.Email)

		case MsgJoinResetRoom:
			if strings.TrimSpace(msg.Email) == "" {
				h.Hub.Send(id, errorEvent("missing_email", "An email address is required."))
				continue
			}
			h.Hub.JoinPasswordReset(id, msg.Email)

		default:
			h.Hub.Send(id, errorEvent("unknown_type", "Unrecognized message type."))
		}
	}
}

func errorEvent(reason, message string) ServerEvent {
	return ServerEvent{Type: EventError, Reason: reason, Message: message}
}
