package realtime

import "github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"

// Server-to-client event types.
const (
	EventForceLogout   = "forceLogout"
	EventGlobalLogout  = "auth_broadcast"
	EventEmailVerified = "emailVerified"
	EventLoginSuccess  = "loginSuccess"
	EventError         = "error"
)

// Client-to-server message types.
const (
	MsgAuthenticate   = "authenticate"
	MsgJoinVerifyRoom = "joinVerificationRoom"
	MsgJoinResetRoom  = "joinPasswordResetRoom"
)

// ClientMessage is what a socket sends: either an access token to join its
// user room, or an email address to join one of the anonymous rooms.
type ClientMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"accessToken,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ServerEvent is the envelope every room delivery uses. Tokens ride along on
// emailVerified so a second tab can log itself in without re-entering
// credentials.
type ServerEvent struct {
	Type    string             `json:"type"`
	Reason  string             `json:"reason,omitempty"`
	Message string             `json:"message,omitempty"`
	Email   string             `json:"email,omitempty"`
	Tokens  *dto.TokenResponse `json:"tokens,omitempty"`
}

// envelope is the cross-instance pub/sub frame: a room name plus the event
// to deliver to that room's local members.
type envelope struct {
	Room  string      `json:"room"`
	Event ServerEvent `json:"event"`
}
